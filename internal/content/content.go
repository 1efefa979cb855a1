// Package content defines the transient, provider-agnostic payload
// assembled before an LLM call. Blocks are produced once, consumed by
// a single provider call, and never persisted.
package content

// Kind tags the variant carried by a Block.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Block is a tagged union: exactly one variant is set, selected by Kind.
type Block struct {
	Kind Kind

	// KindText
	Text string

	// KindImage: fetchable URL plus declared MIME type.
	ImageURL  string
	ImageMime string

	// KindDocument: fetchable URL, MIME type, and original file name.
	DocumentURL  string
	DocumentMime string
	FileName     string
}

// TextBlock returns a Block carrying plain text.
func TextBlock(text string) Block {
	return Block{Kind: KindText, Text: text}
}

// ImageBlock returns a Block referencing an image by URL.
func ImageBlock(url, mime string) Block {
	return Block{Kind: KindImage, ImageURL: url, ImageMime: mime}
}

// DocumentBlock returns a Block referencing a document by URL.
func DocumentBlock(url, mime, fileName string) Block {
	return Block{Kind: KindDocument, DocumentURL: url, DocumentMime: mime, FileName: fileName}
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered sequence handed to a provider.
// Either Text or Blocks is set, not both.
type Message struct {
	Role   Role
	Text   string
	Blocks []Block
}

// UserMessage wraps blocks into a single user-role message.
func UserMessage(blocks []Block) Message {
	return Message{Role: RoleUser, Blocks: blocks}
}
