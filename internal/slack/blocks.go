package slack

// Block is a Block Kit block attached to a chat.postMessage call. Only the
// section and image shapes used by this service are modeled.
type Block struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	AltText  string      `json:"alt_text,omitempty"`
}

// TextObject is a Block Kit text object.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SectionBlock builds a section block with mrkdwn text.
func SectionBlock(text string) Block {
	return Block{
		Type: "section",
		Text: &TextObject{Type: "mrkdwn", Text: text},
	}
}

// ImageBlock builds an image block.
func ImageBlock(imageURL, altText string) Block {
	return Block{
		Type:     "image",
		ImageURL: imageURL,
		AltText:  altText,
	}
}
