package guidance

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(r Request) string {
	var sb strings.Builder

	sb.WriteString("You are helping a person dispose of a waste item properly.\n\n")

	label := strings.TrimSpace(r.Label)
	if label == "" {
		label = "unknown"
	}
	fmt.Fprintf(&sb, "Image classifier label: %s\n", label)

	if d := strings.TrimSpace(r.Description); d != "" {
		fmt.Fprintf(&sb, "User description: %s\n", d)
	} else {
		sb.WriteString("User description: (none)\n")
	}

	if r.Location != nil {
		fmt.Fprintf(&sb, "User location: latitude %.6f, longitude %.6f\n", r.Location.Latitude, r.Location.Longitude)
	} else {
		sb.WriteString("User location: unknown\n")
	}

	if len(r.Image) > 0 {
		sb.WriteString("A photo of the item is attached.\n")
	}

	sb.WriteString(`
Rules:
- If the photo and the text disagree about what the item basically is, trust the photo.
- Ignore claims about the item that are implausible.
- Classify the outcome as exactly one of: Profitable, Non-Profitable, Neutral. Profitable means the person is paid for returning or recycling the item, Non-Profitable means they pay a fee, Neutral means no money changes hands.
- Give a redemption value in US dollars consistent with the outcome: positive for Profitable, negative for Non-Profitable, 0 for Neutral. Keep it realistic, never more than 100 dollars in either direction.
- Base the disposal instructions on the rules of the jurisdiction the location falls in. If the location is unknown, give generally applicable advice.
- Answer in plain text. Do not use markdown.

Answer with exactly these three sections, in this order, and nothing else:
Cost: <Profitable, Non-Profitable or Neutral>

Redemption Value: <signed dollar amount, for example 0.05 or -2.50>

Details: <disposal instructions>`)

	return sb.String()
}
