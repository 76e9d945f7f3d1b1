package engine

import "strings"

// Response is the content part of a model reply, in one of three shapes:
// plain text, a list of typed blocks, or nothing at all.
type Response interface {
	isResponse()
}

type TextContent struct {
	Text string
}

// ContentBlock is one part of a multi-part reply. Only blocks of type "text"
// (or with no type) carry user-visible text.
type ContentBlock struct {
	Type string
	Text string
}

type BlockContent struct {
	Blocks []ContentBlock
}

type EmptyContent struct{}

func (TextContent) isResponse()  {}
func (BlockContent) isResponse() {}
func (EmptyContent) isResponse() {}

// NewResponse picks the shape for a provider reply: blocks win over text,
// and an all-blank reply is EmptyContent.
func NewResponse(text string, blocks []ContentBlock) Response {
	if len(blocks) > 0 {
		return BlockContent{Blocks: blocks}
	}
	if strings.TrimSpace(text) == "" {
		return EmptyContent{}
	}
	return TextContent{Text: text}
}

// NormalizeText extracts the plain text of a reply. Text blocks are joined
// with newlines in order; other block types are ignored.
func NormalizeText(r Response) string {
	switch r_ := r.(type) {
	case TextContent:
		return strings.TrimSpace(r_.Text)
	case BlockContent:
		parts := make([]string, 0, len(r_.Blocks))
		for _, b := range r_.Blocks {
			if b.Type != "" && b.Type != "text" {
				continue
			}
			if t := strings.TrimSpace(b.Text); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
