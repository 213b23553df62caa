// Package migrations embeds the SQL schema so the binary can apply it.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.up.sql
var files embed.FS

type Migration struct {
	Name string
	SQL  string
}

// Up returns the up migrations in the order they must be applied.
func Up() ([]Migration, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	result := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		result = append(result, Migration{
			Name: strings.TrimSuffix(name, ".up.sql"),
			SQL:  string(data),
		})
	}
	return result, nil
}
