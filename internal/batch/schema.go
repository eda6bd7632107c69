package batch

// Schema declares a destination table and the columns it accepts.
type Schema struct {
	Table   string
	Allowed map[string]bool
}

func fields(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var eventFields = fields(
	"id", "created_at", "image", "title", "title_dop", "description", "whenDay", "whenTime",
	"link_site", "price", "where", "author", "link_map", "link_contact", "isAvailable", "city",
	"currency", "isPriceFrom", "category", "isAuto", "isOnline", "author_username", "author_link",
	"post_link", "message_id", "channel_name",
)

var postFields = fields(
	"id", "channel_name", "message_id", "content", "posted_at", "is_event_filtered", "is_event",
	"post_link", "raw_channel_id", "image_url", "created_at", "image", "title", "title_dop",
	"description", "whenDay", "whenTime", "link_site", "price", "where", "author", "link_map",
	"link_contact", "isAvailable", "city", "currency", "isPriceFrom", "category", "isOnline",
	"author_username", "author_link",
)

// PostsSchema is the raw-log table.
func PostsSchema(table string) Schema { return Schema{Table: table, Allowed: postFields} }

// EventsSchema is the normalized events table.
func EventsSchema(table string) Schema { return Schema{Table: table, Allowed: eventFields} }
