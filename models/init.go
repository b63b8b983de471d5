package models

// DefaultPipelineName is the board every new tenant starts with
const DefaultPipelineName = "Sales Pipeline"

// WonStageName is the stage the dashboard counts as a win
const WonStageName = "Won"

// DefaultStageNames are the ordered stages of the default pipeline
var DefaultStageNames = []string{"New", "Contacted", "Qualified", WonStageName}

// DefaultTemplates are seeded for a tenant that has no templates yet
func DefaultTemplates(userID uint) []EmailTemplate {
	return []EmailTemplate{
		{
			UserID:  userID,
			Name:    "Welcome sequence – day 1",
			Subject: "Welcome to our workspace {{contact.firstName}}",
			Body: "<p>Hi {{contact.firstName}},</p>\n" +
				"<p>Great to meet you! This note is sent via SimpleAutomate so every reply lands in your CRM history.</p>\n" +
				"<p>Hit reply if you have any questions or book time directly with me.</p>\n" +
				"<p>The SimpleAutomate team</p>",
		},
		{
			UserID:  userID,
			Name:    "Event / webinar invite",
			Subject: "You're invited: upcoming workshop",
			Body: "<p>Hi {{contact.firstName}},</p>\n" +
				"<p>We're hosting a short live session that walks through the exact automation stack our clients use.</p>\n" +
				"<ul>\n  <li>15 minute playbook</li>\n  <li>Live Q&A</li>\n  <li>Replay delivered if you can't attend</li>\n</ul>\n" +
				"<p>Reserve a seat with one click below.</p>",
		},
		{
			UserID:  userID,
			Name:    "Customer success check-in",
			Subject: "Quick check-in",
			Body: "<p>Hi {{contact.firstName}},</p>\n" +
				"<p>Just checking in to see how things are progressing. Reply with any blockers and we'll slot a quick call.</p>\n" +
				"<p>Talk soon!</p>",
		},
	}
}
