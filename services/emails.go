package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/queue"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<h2>{{.Heading}}</h2>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Link}}<p><a href="{{.Link}}">{{.LinkText}}</a></p>{{end}}
<p style="color:#888;font-size:12px">Foresite Realty</p>
</body></html>`))

type emailContent struct {
	Heading    string
	Paragraphs []string
	Link       string
	LinkText   string
}

func buildEmail(to, subject string, content emailContent) queue.EmailJob {
	var html bytes.Buffer
	if err := emailLayout.Execute(&html, content); err != nil {
		utils.ErrorLogger.WithError(err).Error("Render email template")
	}

	var text bytes.Buffer
	text.WriteString(content.Heading + "\n\n")
	for _, p := range content.Paragraphs {
		text.WriteString(p + "\n\n")
	}
	if content.Link != "" {
		text.WriteString(content.Link + "\n")
	}
	return queue.EmailJob{To: to, Subject: subject, Text: text.String(), HTML: html.String()}
}

func inquiryConfirmationEmail(inq *models.Inquiry, prop *models.Property, publicURL string) queue.EmailJob {
	name := inq.Name
	if name == "" {
		name = "there"
	}
	return buildEmail(inq.Email, "We received your inquiry: "+prop.Title, emailContent{
		Heading: fmt.Sprintf("Hi %s,", name),
		Paragraphs: []string{
			fmt.Sprintf("Thanks for your interest in %s, %s.", prop.Title, prop.Address.City),
			"The listing agent has been notified and will get back to you shortly.",
		},
		Link:     fmt.Sprintf("%s/properties/%d", publicURL, prop.ID),
		LinkText: "View the property",
	})
}

func agentInquiryEmail(agent *models.User, inq *models.Inquiry, prop *models.Property, publicURL string) queue.EmailJob {
	from := inq.Email
	if inq.Name != "" {
		from = fmt.Sprintf("%s <%s>", inq.Name, inq.Email)
	}
	return buildEmail(agent.Email, "New inquiry for "+prop.Title, emailContent{
		Heading: fmt.Sprintf("New %s inquiry", inq.InquiryType),
		Paragraphs: []string{
			"From: " + from,
			inq.Message,
		},
		Link:     fmt.Sprintf("%s/inquiries/%d", publicURL, inq.ID),
		LinkText: "Open the inquiry",
	})
}

func inquiryStatusEmail(inq *models.Inquiry, prop *models.Property, publicURL string) queue.EmailJob {
	return buildEmail(inq.Email, "Update on your inquiry: "+prop.Title, emailContent{
		Heading: "Your inquiry has been updated",
		Paragraphs: []string{
			fmt.Sprintf("The status of your inquiry about %s is now %s.", prop.Title, inq.Status),
		},
		Link:     fmt.Sprintf("%s/properties/%d", publicURL, prop.ID),
		LinkText: "View the property",
	})
}

func welcomeEmail(user *models.User, publicURL string) queue.EmailJob {
	return buildEmail(user.Email, "Welcome to Foresite", emailContent{
		Heading:    fmt.Sprintf("Welcome, %s!", user.Name),
		Paragraphs: []string{"Your account is ready. Save searches and contact agents directly from any listing."},
		Link:       publicURL,
		LinkText:   "Start browsing",
	})
}

// enqueueEmail never fails the caller: mail is best effort once the write has committed.
func enqueueEmail(ctx context.Context, emails EmailEnqueuer, job queue.EmailJob) {
	if emails == nil || job.To == "" {
		return
	}
	id, err := emails.Enqueue(ctx, job)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"to": job.To, "subject": job.Subject}).
			WithError(err).Error("Failed to enqueue email")
		return
	}
	utils.InfoLogger.WithFields(logrus.Fields{"job_id": id, "subject": job.Subject}).Debug("Email queued")
}
