// Package markup converts a cabinet tree to and from its XML form.
//
// The document root is always a <Folder> element standing for the
// cabinet; it carries the store password so a decrypted file can be
// checked against the key that opened it. Only the first element is read,
// so trailing cipher padding after the root is ignored.
package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/starford/sumi/internal/apperr"
	"github.com/starford/sumi/internal/tree"
)

// RootTag is the element name of the cabinet.
const RootTag = "Folder"

// ErrMalformed is returned for input that is not a well-formed cabinet
// document.
var ErrMalformed = errors.New("markup: malformed document")

var tagKinds = map[string]tree.Kind{
	"Folder": tree.KindFolder,
	"Card":   tree.KindCard,
	"Line":   tree.KindSingleLine,
	"Text":   tree.KindMultiLine,
}

var kindTags = map[tree.Kind]string{
	tree.KindCabinet:    RootTag,
	tree.KindFolder:     "Folder",
	tree.KindCard:       "Card",
	tree.KindSingleLine: "Line",
	tree.KindMultiLine:  "Text",
}

type element struct {
	XMLName  xml.Name
	ID       string    `xml:"id,attr"`
	Created  string    `xml:"created,attr"`
	Modified string    `xml:"modified,attr"`
	Label    string    `xml:"label,attr"`
	Password *string   `xml:"password,attr"`
	Text     string    `xml:",chardata"`
	Children []element `xml:",any"`
}

// Render serializes the cabinet rooted at root.
func Render(root *tree.Node) ([]byte, error) {
	if root == nil || root.Kind() != tree.KindCabinet {
		return nil, fmt.Errorf("markup: render root must be a cabinet: %w", apperr.ErrInvalidOperation)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(toElement(root)); err != nil {
		return nil, fmt.Errorf("markup: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func toElement(n *tree.Node) element {
	r := n.Record()
	el := element{
		XMLName:  xml.Name{Local: kindTags[r.Kind]},
		ID:       r.ID,
		Created:  r.Created.UTC().Format(time.RFC3339Nano),
		Modified: r.Modified.UTC().Format(time.RFC3339Nano),
		Label:    r.Label,
	}
	switch {
	case r.Kind == tree.KindCabinet:
		pw := r.Password
		el.Password = &pw
	case r.Kind.IsEntry():
		el.Text = r.Content
	}
	for _, c := range n.Children() {
		el.Children = append(el.Children, toElement(c))
	}
	return el
}

// Parse reads a cabinet document. The returned tree is clean.
func Parse(data []byte) (*tree.Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root element
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("markup: no root element: %w", apperr.ErrStorageEmpty)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root.XMLName.Local != RootTag {
		return nil, fmt.Errorf("markup: unexpected root <%s>: %w", root.XMLName.Local, apperr.ErrStorageEmpty)
	}
	return build(root, tree.KindCabinet)
}

func build(el element, kind tree.Kind) (*tree.Node, error) {
	created, err := parseTime(el.Created)
	if err != nil {
		return nil, err
	}
	modified, err := parseTime(el.Modified)
	if err != nil {
		return nil, err
	}
	rec := tree.Record{
		ID:       el.ID,
		Kind:     kind,
		Created:  created,
		Modified: modified,
		Label:    el.Label,
	}
	if el.Password != nil {
		rec.Password = *el.Password
	}
	if kind.IsEntry() {
		rec.Content = el.Text
	}
	n, err := tree.Restore(rec)
	if err != nil {
		return nil, err
	}
	for _, child := range el.Children {
		ck, ok := tagKinds[child.XMLName.Local]
		if !ok {
			return nil, fmt.Errorf("%w: unknown element <%s>", ErrMalformed, child.XMLName.Local)
		}
		c, err := build(child, ck)
		if err != nil {
			return nil, err
		}
		if err := n.Attach(c, tree.Quietly()); err != nil {
			return nil, fmt.Errorf("markup: %v: %w", err, apperr.ErrCorrupt)
		}
	}
	return n, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("markup: timestamp %q: %w", s, apperr.ErrCorrupt)
	}
	return t.UTC(), nil
}
