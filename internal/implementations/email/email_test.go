package email

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stretchr/testify/require"
)

const sendTemplatedEmailResponse = `<SendTemplatedEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendTemplatedEmailResult><MessageId>0000-1111</MessageId></SendTemplatedEmailResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</SendTemplatedEmailResponse>`

const messageRejectedResponse = `<ErrorResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <Error><Type>Sender</Type><Code>MessageRejected</Code><Message>Email address is not verified.</Message></Error>
  <RequestId>req-2</RequestId>
</ErrorResponse>`

func newTestConfig(endpoint string) aws.Config {
	return aws.Config{
		Region:      "eu-central-1",
		Credentials: credentials.NewStaticCredentialsProvider("access", "secret", ""),
		EndpointResolverWithOptions: aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint}, nil
			},
		),
		Retryer: func() aws.Retryer { return aws.NopRetryer{} },
	}
}

func TestSendReminder(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		rw.Header().Set("Content-Type", "text/xml")
		rw.Write([]byte(sendTemplatedEmailResponse))
	}))
	defer server.Close()
	sender := NewEmailSender(newTestConfig(server.URL), "noreply@repeatme.test", "reminder")

	// Exercise ---
	err := sender.SendReminder(context.Background(), "student@example.com", `the "krebs" cycle`)

	// Verify ---
	assert.Nil(err)
	assert.Equal("SendTemplatedEmail", form.Get("Action"))
	assert.Equal("noreply@repeatme.test", form.Get("Source"))
	assert.Equal("reminder", form.Get("Template"))
	assert.Equal("student@example.com", form.Get("Destination.ToAddresses.member.1"))
	assert.JSONEq(`{"text": "the \"krebs\" cycle"}`, form.Get("TemplateData"))
}

func TestSendReminderRejected(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/xml")
		rw.WriteHeader(http.StatusBadRequest)
		rw.Write([]byte(messageRejectedResponse))
	}))
	defer server.Close()
	sender := NewEmailSender(newTestConfig(server.URL), "noreply@repeatme.test", "reminder")

	// Exercise ---
	err := sender.SendReminder(context.Background(), "student@example.com", "x")

	// Verify ---
	var rejected *types.MessageRejected
	assert.True(errors.As(err, &rejected))
}

const alreadyExistsResponse = `<ErrorResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <Error><Type>Sender</Type><Code>AlreadyExists</Code><Message>Template reminder already exists.</Message></Error>
  <RequestId>req-3</RequestId>
</ErrorResponse>`

const updateTemplateResponse = `<UpdateTemplateResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <UpdateTemplateResult/>
  <ResponseMetadata><RequestId>req-4</RequestId></ResponseMetadata>
</UpdateTemplateResponse>`

func TestCreateReminderTemplateReplacesExisting(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	var actions []string
	var lastForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		actions = append(actions, form.Get("Action"))
		lastForm = form
		rw.Header().Set("Content-Type", "text/xml")
		if form.Get("Action") == "CreateTemplate" {
			rw.WriteHeader(http.StatusBadRequest)
			rw.Write([]byte(alreadyExistsResponse))
			return
		}
		rw.Write([]byte(updateTemplateResponse))
	}))
	defer server.Close()
	sender := NewEmailSender(newTestConfig(server.URL), "noreply@repeatme.test", "reminder")

	// Exercise ---
	err := sender.CreateReminderTemplate(context.Background(), ReminderTemplate{
		Subject: "Time to review",
		HTML:    "<p>{{text}}</p>",
		Text:    "{{text}}",
	})

	// Verify ---
	assert.Nil(err)
	assert.Equal([]string{"CreateTemplate", "UpdateTemplate"}, actions)
	assert.Equal("reminder", lastForm.Get("Template.TemplateName"))
	assert.Equal("Time to review", lastForm.Get("Template.SubjectPart"))
	assert.Equal("{{text}}", lastForm.Get("Template.TextPart"))
}
