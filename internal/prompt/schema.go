package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// outputEvent documents the object the classifier is asked to produce.
type outputEvent struct {
	IsEvent     bool   `json:"is_event" jsonschema_description:"true when the message announces a real-world event"`
	Title       string `json:"title" jsonschema_description:"short event name"`
	TitleDop    string `json:"title_dop,omitempty" jsonschema_description:"subtitle or performer"`
	WhenDay     string `json:"whenDay" jsonschema_description:"event date as YYYY-MM-DD resolved against the post date, or null"`
	WhenTime    string `json:"whenTime,omitempty" jsonschema_description:"start time as HH:MM"`
	Where       string `json:"where" jsonschema_description:"venue or address"`
	Price       *int   `json:"price" jsonschema_description:"lowest ticket price as an integer, or null when free or unknown"`
	IsPriceFrom bool   `json:"isPriceFrom,omitempty" jsonschema_description:"true when the price is a lower bound"`
	Currency    string `json:"currency" jsonschema_description:"ISO currency code"`
	IsOnline    bool   `json:"isOnline" jsonschema_description:"true for online-only events"`
	Category    int    `json:"category" jsonschema_description:"numeric category id"`
	LinkContact string `json:"link_contact" jsonschema_description:"contact link or handle"`
	LinkMap     string `json:"link_map" jsonschema_description:"map search link"`
	LinkSite    string `json:"link_site" jsonschema_description:"ticket or info link"`
	Description string `json:"description" jsonschema_description:"one paragraph summary"`
}

// OutputSchema renders the JSON schema of the classifier output: an array of
// event objects, one per distinct event in the message.
func OutputSchema() (string, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect([]outputEvent{})
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal output schema: %w", err)
	}
	return string(data), nil
}
