package index

// CardIndex is the search surface the service depends on.
type CardIndex interface {
	UpsertCard(c CardRow, body string, links []string) error
	DeleteCard(id string) error
	GetChecksum(id string) (string, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	Tags() ([]TagCount, error)
	CardsWithTag(tag string) ([]string, error)
	Clear() error
	Close() error
}

var _ CardIndex = (*DB)(nil)
