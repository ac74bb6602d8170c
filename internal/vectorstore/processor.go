package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Metadata bounds. Backends cap payload sizes, so list-valued fields are
// truncated and the description copy kept in metadata is shortened; the
// full text lives only in Document.Content.
const (
	maxDescriptionChars = 500
	maxKeywords         = 10
	maxLabels           = 5
)

// ErrMissingTicketKey is returned when a ticket has no key. A keyless
// ticket would collide all of a tenant's upserts on one document ID.
var ErrMissingTicketKey = errors.New("ticket key is required")

// User identifies a ticket participant.
type User struct {
	DisplayName string
}

// Ticket is a raw support/issue ticket as fetched from a tracker.
// All fields except Key are optional.
type Ticket struct {
	Key         string
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Status      string
	Created     string
	Assignee    *User
	Reporter    *User
	Labels      []string
}

// Classification is the triage classification produced for a ticket.
type Classification struct {
	Component string
	Severity  string
	IsBug     bool
	Keywords  []string
}

// DocPage is a raw documentation page as fetched from a wiki or docs site.
type DocPage struct {
	Title        string
	Content      string
	Excerpt      string
	URL          string
	Source       string
	DocType      string
	Space        string
	Author       string
	LastModified string
}

// CodeFile is a raw source file as fetched from a repository.
type CodeFile struct {
	Path     string
	Name     string
	Content  string
	Language string
	URL      string
}

// RepoInfo identifies the repository a CodeFile came from.
type RepoInfo struct {
	Owner  string
	Repo   string
	Branch string
}

// stableHash returns a fixed-width hash of the natural key, stable across
// processes and runs so document IDs survive restarts.
func stableHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// truncateRunes shortens s to at most n runes without splitting a
// multi-byte character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// capStrings returns at most n elements of list, never nil.
func capStrings(list []string, n int) []string {
	if list == nil {
		return []string{}
	}
	if len(list) > n {
		return list[:n]
	}
	return list
}

func displayName(u *User) string {
	if u == nil {
		return ""
	}
	return u.DisplayName
}

// TicketDocumentID returns the deterministic document ID for a ticket,
// ticket_{tenantID}_{key}.
func TicketDocumentID(ticketKey, tenantID string) string {
	return fmt.Sprintf("ticket_%s_%s", tenantID, ticketKey)
}

// PrepareTicketDocument normalizes a ticket plus its classification into an
// indexable document.
//
// Content is summary and description joined by a blank line, trimmed.
// The document ID is ticket_{tenantID}_{key}, so re-processing the same
// ticket yields the same ID.
func PrepareTicketDocument(ticket Ticket, classification Classification, tenantID string) (Document, error) {
	if ticket.Key == "" {
		return Document{}, ErrMissingTicketKey
	}

	content := strings.TrimSpace(ticket.Summary + "\n\n" + ticket.Description)

	component := classification.Component
	if component == "" {
		component = "unknown"
	}
	severity := classification.Severity
	if severity == "" {
		severity = "unknown"
	}

	metadata := map[string]interface{}{
		"ticket_key":    ticket.Key,
		"tenant_id":     tenantID,
		"summary":       ticket.Summary,
		"description":   truncateRunes(ticket.Description, maxDescriptionChars),
		"issue_type":    ticket.IssueType,
		"priority":      ticket.Priority,
		"status":        ticket.Status,
		"component":     component,
		"severity":      severity,
		"is_bug":        classification.IsBug,
		"keywords":      capStrings(classification.Keywords, maxKeywords),
		"created_at":    ticket.Created,
		"assignee":      displayName(ticket.Assignee),
		"reporter":      displayName(ticket.Reporter),
		"labels":        capStrings(ticket.Labels, maxLabels),
		"document_type": string(DocumentTypeTicket),
	}

	return Document{
		ID:       TicketDocumentID(ticket.Key, tenantID),
		Content:  content,
		Metadata: metadata,
	}, nil
}

// PrepareDocumentationDocument normalizes a documentation page into an
// indexable document.
//
// Content is title and body joined by a blank line; the excerpt stands in
// when the full body is absent. The document ID hashes the URL (or the
// title when no URL exists) so re-crawling the same page is idempotent.
func PrepareDocumentationDocument(doc DocPage, tenantID string) Document {
	body := doc.Content
	if body == "" {
		body = doc.Excerpt
	}
	content := strings.TrimSpace(doc.Title + "\n\n" + body)

	docType := doc.DocType
	if docType == "" {
		docType = "general"
	}

	hashKey := doc.URL
	if hashKey == "" {
		hashKey = doc.Title
	}

	metadata := map[string]interface{}{
		"tenant_id":     tenantID,
		"title":         doc.Title,
		"url":           doc.URL,
		"source":        doc.Source,
		"doc_type":      docType,
		"space":         doc.Space,
		"author":        doc.Author,
		"last_modified": doc.LastModified,
		"document_type": string(DocumentTypeDocumentation),
	}

	return Document{
		ID:       fmt.Sprintf("doc_%s_%s", tenantID, stableHash(hashKey)),
		Content:  content,
		Metadata: metadata,
	}
}

// PrepareCodeDocument normalizes a source file into an indexable document.
//
// Content is the raw file content, unmodified. The document ID hashes
// repo and path so re-scanning the same file is idempotent.
func PrepareCodeDocument(file CodeFile, repo RepoInfo, tenantID string) Document {
	branch := repo.Branch
	if branch == "" {
		branch = "main"
	}

	metadata := map[string]interface{}{
		"tenant_id":     tenantID,
		"file_path":     file.Path,
		"file_name":     file.Name,
		"repository":    fmt.Sprintf("%s/%s", repo.Owner, repo.Repo),
		"branch":        branch,
		"language":      file.Language,
		"size":          len(file.Content),
		"url":           file.URL,
		"document_type": string(DocumentTypeCode),
	}

	return Document{
		ID:       fmt.Sprintf("code_%s_%s", tenantID, stableHash(repo.Repo+"_"+file.Path)),
		Content:  file.Content,
		Metadata: metadata,
	}
}
