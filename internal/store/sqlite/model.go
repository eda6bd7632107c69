package sqlite

// EventColumns are the columns posts and events share.
type EventColumns struct {
	Image          string  `gorm:"column:image"`
	Title          string  `gorm:"column:title"`
	TitleDop       string  `gorm:"column:title_dop"`
	Description    string  `gorm:"column:description"`
	WhenDay        *string `gorm:"column:whenDay;index"`
	WhenTime       *string `gorm:"column:whenTime"`
	LinkSite       string  `gorm:"column:link_site"`
	Price          *int64  `gorm:"column:price"`
	Where          string  `gorm:"column:where"`
	Author         *string `gorm:"column:author"`
	LinkMap        string  `gorm:"column:link_map"`
	LinkContact    string  `gorm:"column:link_contact"`
	IsAvailable    *bool   `gorm:"column:isAvailable"`
	City           *string `gorm:"column:city"`
	Currency       string  `gorm:"column:currency"`
	IsPriceFrom    *bool   `gorm:"column:isPriceFrom"`
	Category       *int64  `gorm:"column:category"`
	IsOnline       *bool   `gorm:"column:isOnline"`
	AuthorUsername string  `gorm:"column:author_username"`
	AuthorLink     string  `gorm:"column:author_link"`
}

type post struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt       string `gorm:"column:created_at;autoCreateTime:false"`
	ChannelName     string `gorm:"column:channel_name;index"`
	MessageID       int64  `gorm:"column:message_id"`
	Content         string `gorm:"column:content"`
	PostedAt        string `gorm:"column:posted_at"`
	IsEventFiltered bool   `gorm:"column:is_event_filtered"`
	IsEvent         bool   `gorm:"column:is_event"`
	PostLink        string `gorm:"column:post_link"`
	RawChannelID    int64  `gorm:"column:raw_channel_id"`
	ImageURL        string `gorm:"column:image_url"`
	EventColumns    `gorm:"embedded"`
}

type event struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt    string `gorm:"column:created_at;autoCreateTime:false"`
	IsAuto       bool   `gorm:"column:isAuto"`
	PostLink     string `gorm:"column:post_link"`
	MessageID    int64  `gorm:"column:message_id"`
	ChannelName  string `gorm:"column:channel_name"`
	EventColumns `gorm:"embedded"`
}

type syncState struct {
	ID                     int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ChannelID              *int64  `gorm:"column:channel_id"`
	ChannelName            string  `gorm:"column:channel_name;index"`
	ThreadID               *int64  `gorm:"column:thread_id"`
	LastProcessedMessageID int64   `gorm:"column:last_processed_message_id"`
	City                   *string `gorm:"column:City"`
}

type blob struct {
	Bucket      string `gorm:"column:bucket;primaryKey"`
	Path        string `gorm:"column:path;primaryKey"`
	ContentType string `gorm:"column:content_type"`
	Data        []byte `gorm:"column:data"`
}

func (blob) TableName() string { return "blobs" }
