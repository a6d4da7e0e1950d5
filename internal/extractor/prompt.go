package extractor

import (
	"strings"

	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

// historyWindow is how many prior messages accompany the current exchange.
const historyWindow = 10

const systemPrompt = `You are a profile information extractor for a university chatbot.

Analyze the conversation and extract ONLY meaningful, factual information about the student that should be remembered for future interactions.

EXTRACT AND CATEGORIZE:
1. personal_info: name, academic year (freshman/sophomore/junior/senior/grad), major, minor
2. classes: course codes, course names, professors, schedules, locations
3. schedule: class times, study times, regular commitments
4. activities: clubs, sports teams, organizations, volunteer work, jobs
5. preferences: favorite places, dietary needs or restrictions, interests, hobbies
6. academic: advisor name, GPA, honors
7. notes: any other important context about the student

RULES:
- Only extract facts explicitly stated by the student.
- Do not extract questions or hypotheticals.
- Do not extract one-off plans unless they show a regular pattern.
- Do not extract information about other people, except the student's professors or advisor.
- Prefer specific details: "soccer practice on Tuesdays", not "likes soccer".
- For classes, include every detail given (code, name, professor, schedule, location).
- Skip anything already listed in the current profile summary.

OUTPUT FORMAT:
Return one JSON object using only these keys, omitting empty sections:
{
  "personal_info": {"name": "", "year": "", "major": "", "minor": ""},
  "classes": [{"code": "CS101", "name": "Intro to Programming", "professor": "", "schedule": "MWF 10-11am", "location": ""}],
  "schedule": ["Soccer practice Tuesdays 4pm"],
  "activities": ["Soccer team"],
  "preferences": {"dietary": ["vegetarian"], "dining": ["Rocky Top"], "study_locations": ["Library"], "interests": ["AI"]},
  "academic": {"advisor": "Dr. Smith", "gpa": "3.5", "dean_list": true},
  "notes": ["Prefers morning classes"]
}

If there is nothing worth remembering, return: {"extracted": false}`

// buildConversation renders the transcript handed to the model.
func buildConversation(userMsg, botReply string, history []storage.Message, current *profile.Profile) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(speaker(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteByte('\n')
	}
	sb.WriteString("Student: ")
	sb.WriteString(userMsg)
	sb.WriteString("\nQChat: ")
	sb.WriteString(botReply)

	if current != nil {
		sb.WriteString("\n\nCURRENT PROFILE SUMMARY: ")
		sb.WriteString(profile.BriefSummary(current))
	}
	return sb.String()
}

func speaker(role string) string {
	if role == "user" {
		return "Student"
	}
	return "QChat"
}

func userPrompt(conversation string) string {
	return "Analyze this conversation and extract profile information:\n\nCONVERSATION:\n" +
		conversation + "\n\nExtract meaningful profile information as JSON:"
}
