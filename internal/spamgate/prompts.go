package spamgate

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a spam detection system for a personal mailbox. Respond only with JSON."

const promptFormat = `Analyze the following email and decide whether it is unsolicited spam for the mailbox owner.

Mailbox owner: %s
The owner has replied to this sender %d time(s) before.

Email:
From: %s
Reply-To: %s
Subject: %s
Body:
%s

Respond with a JSON object containing:
- isSpam: boolean (true if the email is spam)
- spamIndicators: array of strings (short reasons, empty when not spam)

Respond only with the JSON object and nothing else.`

func buildPrompt(in Input, responseCount int) string {
	owner := strings.Join(in.DisplayNames, ", ")
	if owner == "" {
		owner = "(unknown)"
	}
	replyTo := in.ReplyTo
	if replyTo == "" {
		replyTo = "(none)"
	}
	return fmt.Sprintf(promptFormat, owner, responseCount, in.Sender, replyTo, in.Subject, in.Body)
}
