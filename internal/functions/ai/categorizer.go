package ai

import (
	"strings"
)

const categorizePrompt = `Categorize the following email into one of these categories:
- Interested
- Meeting Booked
- Not Interested
- Spam
- Out of Office

Email:
"""
%TEXT%
"""

Respond only with the category name.`

const maxCategorizeInput = 4000

// Categorize analyzes an email and returns one of five category labels.
// Failures propagate; callers are expected to substitute "Uncategorized".
func (c *Client) Categorize(emailText string) (string, error) {
	if len(emailText) > maxCategorizeInput {
		emailText = emailText[:maxCategorizeInput]
	}

	prompt := strings.Replace(categorizePrompt, "%TEXT%", emailText, 1)

	response, err := c.Chat([]ChatMessage{{Role: "user", Content: prompt}}, 0, 0)
	if err != nil {
		return "", err
	}

	label := strings.TrimSpace(response)
	if label == "" {
		return "", ErrInvalidResponse
	}

	return label, nil
}
