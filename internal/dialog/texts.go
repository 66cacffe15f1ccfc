package dialog

import (
	"fmt"

	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/session"
)

// Callback data of the add-description choice.
const (
	ChoiceAgree    = "agree"
	ChoiceDisagree = "disagree"
)

// User-facing replies.
const (
	Greeting          = "Hi! Let's set up your profile."
	PromptName        = "What's your name?"
	PromptNameAgain   = "Please send your name as a text message."
	PromptAgeAgain    = "Age must be a whole number from 1 to 150. How old are you?"
	PromptPlaceAgain  = "Please send the name of your town as a text message."
	PromptAddDescr    = "Do you want to add a description?"
	PromptDescription = "Then, enter a description."
	PromptDescrAgain  = "Please send the description as a text message."
	SetupComplete     = "Profile setup complete."
)

// DescriptionChoices is the yes/no menu offered after the place step.
var DescriptionChoices = []chat.Choice{
	{Label: "Yes", Data: ChoiceAgree},
	{Label: "No", Data: ChoiceDisagree},
}

// GreetAndAskName is sent when onboarding (re)starts.
func GreetAndAskName() string {
	return Greeting + "\n" + PromptName
}

func ackNameAskAge(name string) string {
	return fmt.Sprintf("Nice to meet you, %s! How old are you?", name)
}

func ackAgeAskPlace(s *session.Session) string {
	return fmt.Sprintf("Got it, %s. You are %d. Where are you from?", session.Deref(s.Name), session.Deref(s.Age))
}

func ackPlaceAskDescription(loc session.Location) string {
	return fmt.Sprintf("Noted: %s!\n%s", FormatLocation(loc), PromptAddDescr)
}

func placeNotFound(s *session.Session) string {
	return fmt.Sprintf("Place not found. %s, try rephrasing.", session.Deref(s.Name))
}

// FormatLocation renders coordinates as "lat, lon".
func FormatLocation(loc session.Location) string {
	return fmt.Sprintf("%.5f, %.5f", loc.Latitude, loc.Longitude)
}
