// internal/pipeline/prompt/composer.go
// Package prompt renders the generation and interpretation prompts. It does no I/O.
package prompt

import (
	"fmt"
	"strings"

	"nlquery-agent/internal/models"
)

const truncationNote = "\n... (result truncated)"

// Composer holds the phrasing knobs shared by both prompts.
type Composer struct {
	// AnswerLanguage is the language the interpretation must be written in.
	AnswerLanguage string
	// MaxResultChars caps the serialized result embedded in the interpretation prompt. Zero disables the cap.
	MaxResultChars int
	// SQLDialect names the SQL flavour the model should write, e.g. "PostgreSQL".
	SQLDialect string
}

func NewComposer(answerLanguage string, maxResultChars int, sqlDialect string) *Composer {
	if answerLanguage == "" {
		answerLanguage = "English"
	}
	if sqlDialect == "" {
		sqlDialect = "PostgreSQL"
	}
	return &Composer{
		AnswerLanguage: answerLanguage,
		MaxResultChars: maxResultChars,
		SQLDialect:     sqlDialect,
	}
}

// Generation asks for exactly one fenced block in the backend's language.
func (c *Composer) Generation(question string, snapshot models.SchemaSnapshot) string {
	if snapshot.Backend == models.BackendDocument {
		return c.documentGeneration(question, snapshot)
	}
	return c.relationalGeneration(question, snapshot)
}

func (c *Composer) relationalGeneration(question string, snapshot models.SchemaSnapshot) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Your task is to write one %s SQL query that answers the user's question using the schema below.", c.SQLDialect))
	parts = append(parts, "\nSCHEMA:")
	for _, e := range snapshot.Entities {
		parts = append(parts, e.Shape)
	}
	parts = append(parts, fmt.Sprintf("\nQUESTION: %s", question))

	parts = append(parts, "\nINSTRUCTIONS:")
	parts = append(parts, "1. Reply ONLY with the SQL inside a single markdown block: ```sql ... ```.")
	parts = append(parts, "2. Do not explain anything, just the SQL.")
	parts = append(parts, "3. Write a single read-only statement (SELECT or WITH).")
	parts = append(parts, "4. For joins use the declared foreign keys (e.g. users.id = orders.user_id).")
	parts = append(parts, "5. Only reference tables and columns that appear in the schema.")

	return strings.Join(parts, "\n")
}

func (c *Composer) documentGeneration(question string, snapshot models.SchemaSnapshot) string {
	var parts []string

	parts = append(parts, "Your task is to write a short Lua snippet that queries a document database to answer the user's question.")
	parts = append(parts, "\nSCHEMA (collections and one sample document each):")
	for _, e := range snapshot.Entities {
		parts = append(parts, fmt.Sprintf("Collection %q:", e.Name))
		parts = append(parts, e.Shape)
	}
	parts = append(parts, fmt.Sprintf("\nQUESTION: %s", question))

	parts = append(parts, "\nINSTRUCTIONS:")
	parts = append(parts, "1. Reply ONLY with Lua code inside a single markdown block: ```lua ... ```.")
	parts = append(parts, "2. A global `db` is already connected. Collections are `db.<name>` or `db:collection(\"<name>\")`.")
	parts = append(parts, "3. Store the answer in the global variable `result`. Do not declare it `local`.")
	parts = append(parts, "4. `result` must be a list of documents (`find(...):to_list()`) or a single value such as a count.")
	parts = append(parts, "5. Available methods: find(filter, {sort=..., limit=..., skip=..., projection=...}), find_one(filter), count_documents(filter), distinct(field, filter), aggregate(pipeline). Cursors support :sort(field, -1), :limit(n), :skip(n), :to_list().")
	parts = append(parts, "6. Filters are Lua tables with query operators as string keys, e.g. {total = {[\"$gt\"] = 100}}.")
	parts = append(parts, "7. Match text fields with plain strings: {name = \"Bob\"}. Do not use extended JSON wrappers such as {[\"$oid\"] = ...}.")
	parts = append(parts, "8. Only when matching an _id, use ObjectId(\"<hex>\").")
	parts = append(parts, "9. There is no require, io, os or print. Only use `db`, `ObjectId` and the string, table and math libraries. Lua string patterns are unavailable; use the $regex filter operator to match text.")
	parts = append(parts, "10. Valid examples:")
	parts = append(parts, "   - result = db.users:find({name = \"Alice\"}):to_list()")
	parts = append(parts, "   - result = db.orders:find({user_name = \"Bob\"}):sort(\"total\", -1):to_list()")
	parts = append(parts, "   - result = db.users:count_documents({})")

	return strings.Join(parts, "\n")
}

// Interpretation asks the model to narrate a serialized result.
func (c *Composer) Interpretation(question string, artifact models.GeneratedArtifact, serialized string) string {
	var parts []string

	label := "SQL query"
	if artifact.Backend == models.BackendDocument {
		label = "Executed code"
	}

	parts = append(parts, fmt.Sprintf("Original question: %s", question))
	parts = append(parts, fmt.Sprintf("%s: %s", label, artifact.Source))
	parts = append(parts, fmt.Sprintf("Database result: %s", c.truncate(serialized)))

	parts = append(parts, "\nINSTRUCTIONS:")
	parts = append(parts, "1. Answer the original question based on the result.")
	parts = append(parts, fmt.Sprintf("2. Answer in %s.", c.AnswerLanguage))
	parts = append(parts, "3. Explain the results in DETAIL. Do not give a brief summary. If the result is a list, mention the important details of each item.")
	parts = append(parts, "4. If the result is empty, say that no matching data was found.")

	return strings.Join(parts, "\n")
}

func (c *Composer) truncate(s string) string {
	if c.MaxResultChars <= 0 || len(s) <= c.MaxResultChars {
		return s
	}
	cut := c.MaxResultChars
	// keep the cut on a rune boundary
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationNote
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
