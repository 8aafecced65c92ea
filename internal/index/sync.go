package index

import (
	"log/slog"
	"strings"

	"github.com/starford/sumi/internal/checksum"
	"github.com/starford/sumi/internal/parser"
	"github.com/starford/sumi/internal/tree"
)

// PathSeparator joins breadcrumb labels in CardRow.Path.
const PathSeparator = " / "

// Sync walks the tree and brings the index up to date:
//   - new/changed cards are parsed and upserted
//   - cards no longer in the tree are deleted from the index
func Sync(db CardIndex, root *tree.Node, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	live := make(map[string]struct{})
	root.Walk(func(n *tree.Node) {
		if n.Kind() != tree.KindCard {
			return
		}
		live[n.ID()] = struct{}{}
		row, body, links := Document(n)
		if checksums[n.ID()] == row.Checksum {
			return
		}
		if err := db.UpsertCard(row, body, links); err != nil {
			logger.Warn("sync: index failed", slog.String("card", n.ID()), slog.String("error", err.Error()))
			return
		}
		logger.Debug("sync: indexed", slog.String("card", n.ID()))
	})

	for id := range checksums {
		if _, ok := live[id]; ok {
			continue
		}
		if err := db.DeleteCard(id); err != nil {
			logger.Warn("sync: delete failed", slog.String("card", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("card", id))
		}
	}
	return nil
}

// IndexCard upserts a single card.
func IndexCard(db CardIndex, card *tree.Node) error {
	row, body, links := Document(card)
	return db.UpsertCard(row, body, links)
}

// Document builds the indexed form of a card: its row, the searchable body
// made of entry labels and text, and its outgoing links.
func Document(card *tree.Node) (CardRow, string, []string) {
	var parts []parser.Result
	for _, e := range card.Children() {
		res := parser.Parse(e.Content())
		res.Body = e.Label() + "\n" + res.Body
		parts = append(parts, res)
	}
	merged := parser.Merge(parts...)
	path := strings.Join(card.Path(), PathSeparator)

	row := CardRow{
		ID:       card.ID(),
		Label:    card.Label(),
		Path:     path,
		Checksum: checksum.Fields(card.Label(), path, merged.Body),
		Tags:     nonNil(merged.Tags),
		Modified: card.Modified(),
	}
	return row, merged.Body, merged.Links
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
