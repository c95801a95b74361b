// Package sqldoc stores the conversation aggregate as a JSON document in a
// SQL table, with a membership side table for lookups by participant. It is
// shared by the postgres and sqlite stores; each supplies a Dialect.
package sqldoc

import (
	"strconv"
	"strings"

	"groupchat/internal/domain"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// Row lock clause appended to the aggregate read inside a mutation.
	ForUpdate string
	// IsUniqueViolation reports whether err is a unique-constraint failure.
	IsUniqueViolation func(error) bool
}

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sealer encrypts message bodies before they are written and decrypts them
// after they are read. security.Encryptor satisfies it.
type Sealer interface {
	SealConversation(c *domain.Conversation) error
	OpenConversation(c *domain.Conversation) error
}
