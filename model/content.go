package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// BlockType identifies the shape of a block's content.
type BlockType string

const (
	BlockParagraph    BlockType = "paragraph"
	BlockHeading1     BlockType = "heading1"
	BlockHeading2     BlockType = "heading2"
	BlockHeading3     BlockType = "heading3"
	BlockBulletList   BlockType = "bulletList"
	BlockNumberedList BlockType = "numberedList"
	BlockCode         BlockType = "code"
	BlockImage        BlockType = "image"
	BlockTable        BlockType = "table"
	BlockQuote        BlockType = "quote"
)

// BlockTypes lists every supported block type.
var BlockTypes = []BlockType{
	BlockParagraph, BlockHeading1, BlockHeading2, BlockHeading3,
	BlockBulletList, BlockNumberedList, BlockCode, BlockImage, BlockTable, BlockQuote,
}

// Valid reports whether t is one of the supported block types.
func (t BlockType) Valid() bool { return slices.Contains(BlockTypes, t) }

// Content is the type-specific payload of a block. Each block type has exactly
// one implementation; the set is closed.
type Content interface {
	BlockType() BlockType
	validate() error
}

// Paragraph is a run of plain text.
type Paragraph struct {
	Text string `json:"text"`
}

// Heading is a section title of level 1 to 3. The level is carried by the
// block type on the wire.
type Heading struct {
	Level int    `json:"-"`
	Text  string `json:"text"`
}

// BulletList is an unordered list.
type BulletList struct {
	Items []string `json:"items"`
}

// NumberedList is an ordered list starting at Start.
type NumberedList struct {
	Items []string `json:"items"`
	Start int      `json:"start,omitempty"`
}

// Code is a source listing.
type Code struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Image is an embedded picture.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Table is a grid of cells; every row has the same number of columns.
type Table struct {
	Rows [][]string `json:"rows"`
}

// Quote is a quotation.
type Quote struct {
	Text string `json:"text"`
}

func (Paragraph) BlockType() BlockType    { return BlockParagraph }
func (BulletList) BlockType() BlockType   { return BlockBulletList }
func (NumberedList) BlockType() BlockType { return BlockNumberedList }
func (Code) BlockType() BlockType         { return BlockCode }
func (Image) BlockType() BlockType        { return BlockImage }
func (Table) BlockType() BlockType        { return BlockTable }
func (Quote) BlockType() BlockType        { return BlockQuote }

func (h Heading) BlockType() BlockType {
	switch h.Level {
	case 1:
		return BlockHeading1
	case 2:
		return BlockHeading2
	case 3:
		return BlockHeading3
	}
	return ""
}

func (Paragraph) validate() error  { return nil }
func (BulletList) validate() error { return nil }
func (Quote) validate() error      { return nil }

func (h Heading) validate() error {
	if h.Level < 1 || h.Level > 3 {
		return fmt.Errorf("%w: heading level %d out of range", ErrInvalidContent, h.Level)
	}
	return nil
}

func (n NumberedList) validate() error {
	if n.Start < 1 {
		return fmt.Errorf("%w: numbered list start %d", ErrInvalidContent, n.Start)
	}
	return nil
}

func (c Code) validate() error {
	if c.Language == "" {
		return fmt.Errorf("%w: code block without language", ErrInvalidContent)
	}
	return nil
}

func (i Image) validate() error {
	if i.URL == "" {
		return fmt.Errorf("%w: image block without url", ErrInvalidContent)
	}
	return nil
}

func (t Table) validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Rows[0]) {
			return fmt.Errorf("%w: table row %d has %d cells, want %d", ErrInvalidContent, i, len(row), len(t.Rows[0]))
		}
	}
	return nil
}

// NewParagraph returns paragraph content.
func NewParagraph(text string) Content { return Paragraph{Text: text} }

// NewHeading returns heading content, rejecting levels outside 1..3.
func NewHeading(level int, text string) (Content, error) {
	h := Heading{Level: level, Text: text}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// NewBulletList returns bullet list content.
func NewBulletList(items ...string) Content {
	return BulletList{Items: slices.Clone(items)}
}

// NewNumberedList returns numbered list content starting at 1.
func NewNumberedList(items ...string) Content {
	return NumberedList{Items: slices.Clone(items), Start: 1}
}

// NewCode returns code content, rejecting an empty language.
func NewCode(text, language string) (Content, error) {
	c := Code{Text: text, Language: language}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewImage returns image content, rejecting an empty url.
func NewImage(url, caption string) (Content, error) {
	i := Image{URL: url, Caption: caption}
	if err := i.validate(); err != nil {
		return nil, err
	}
	return i, nil
}

// NewTable returns table content, rejecting ragged rows.
func NewTable(rows [][]string) (Content, error) {
	t := Table{Rows: make([][]string, len(rows))}
	for i, row := range rows {
		t.Rows[i] = slices.Clone(row)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewQuote returns quote content.
func NewQuote(text string) Content { return Quote{Text: text} }

// ValidateContent checks that c is well formed and matches t.
func ValidateContent(t BlockType, c Content) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownBlockType, t)
	}
	if c == nil {
		return fmt.Errorf("%w: missing content for %s block", ErrInvalidContent, t)
	}
	if err := c.validate(); err != nil {
		return err
	}
	if c.BlockType() != t {
		return fmt.Errorf("%w: %s content on %s block", ErrContentMismatch, c.BlockType(), t)
	}
	return nil
}

// DecodeContent decodes the wire payload of a block of type t. Fields that do
// not belong to the type's shape are rejected.
func DecodeContent(t BlockType, raw json.RawMessage) (Content, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	var (
		c   Content
		err error
	)
	switch t {
	case BlockParagraph:
		var v Paragraph
		err = decodeStrict(raw, &v)
		c = v
	case BlockHeading1, BlockHeading2, BlockHeading3:
		var v Heading
		err = decodeStrict(raw, &v)
		v.Level = int(t[len(t)-1] - '0')
		c = v
	case BlockBulletList:
		var v BulletList
		err = decodeStrict(raw, &v)
		c = v
	case BlockNumberedList:
		v := NumberedList{Start: 1}
		err = decodeStrict(raw, &v)
		c = v
	case BlockCode:
		var v Code
		err = decodeStrict(raw, &v)
		c = v
	case BlockImage:
		var v Image
		err = decodeStrict(raw, &v)
		c = v
	case BlockTable:
		var v Table
		err = decodeStrict(raw, &v)
		c = v
	case BlockQuote:
		var v Quote
		err = decodeStrict(raw, &v)
		c = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContentMismatch, t, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
