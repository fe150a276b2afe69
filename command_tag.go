package pgo

import (
	"strconv"
	"strings"
)

// Verb is the symbolic form of a command tag's leading word. The named
// constants cover the tags the server sends for the common commands;
// any other verb is carried through lowercased.
type Verb string

const (
	VerbSelect   Verb = "select"
	VerbInsert   Verb = "insert"
	VerbUpdate   Verb = "update"
	VerbDelete   Verb = "delete"
	VerbCommit   Verb = "commit"
	VerbRollback Verb = "rollback"
	VerbCopy     Verb = "copy"
	VerbFetch    Verb = "fetch"
	VerbMove     Verb = "move"
)

// CommandTag is the decoded form of a CommandComplete tag.
//
// Rows is -1 when the tag carries no row count. For tags with several
// numbers ("COPY 0 5"-style extensions) Counts holds all of them and
// Rows is the first. Object is set for tags like "CREATE TABLE"
// ("table"). BEGIN decodes to VerbCommit; that quirk is load-bearing
// for the transaction code, which checks BEGIN's result against
// exactly what this decoder yields.
type CommandTag struct {
	Verb   Verb
	Rows   int64
	Counts []int64
	Object string
}

// DecodeCommandTag parses a command tag as received in
// CommandComplete.
func DecodeCommandTag(tag string) CommandTag {
	parts := strings.Split(tag, " ")
	verb := parts[0]

	switch verb {
	case "SELECT", "UPDATE", "DELETE", "FETCH", "MOVE", "COPY":
		if len(parts) == 2 {
			if n, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return CommandTag{Verb: Verb(strings.ToLower(verb)), Rows: n}
			}
		}
	case "INSERT":
		// INSERT <oid> <rows>; the oid is always 0 on modern servers
		// and is discarded either way
		if len(parts) == 3 {
			if n, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				return CommandTag{Verb: VerbInsert, Rows: n}
			}
		}
	case "BEGIN", "COMMIT":
		return CommandTag{Verb: VerbCommit, Rows: -1}
	case "ROLLBACK":
		return CommandTag{Verb: VerbRollback, Rows: -1}
	}

	return decodeGenericTag(verb, parts[1:])
}

func decodeGenericTag(verb string, rest []string) CommandTag {
	ct := CommandTag{Verb: Verb(strings.ToLower(verb)), Rows: -1}
	if len(rest) == 0 {
		return ct
	}

	if rest[0] != "" && rest[0][0] >= '0' && rest[0][0] <= '9' {
		counts := make([]int64, 0, len(rest))
		for _, s := range rest {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				counts = nil
				break
			}
			counts = append(counts, n)
		}
		if counts != nil {
			ct.Counts = counts
			ct.Rows = counts[0]
			return ct
		}
	}

	ct.Object = strings.ToLower(strings.Join(rest, "_"))
	return ct
}

// EncodeCommandTag renders ct back into the server's tag syntax. It is
// the inverse of DecodeCommandTag for every tag this encoder can
// produce (BEGIN is not producible: its decoded form is
// indistinguishable from COMMIT's).
func EncodeCommandTag(ct CommandTag) string {
	verb := strings.ToUpper(string(ct.Verb))

	switch ct.Verb {
	case VerbInsert:
		return verb + " 0 " + strconv.FormatInt(ct.Rows, 10)
	case VerbSelect, VerbUpdate, VerbDelete, VerbFetch, VerbMove, VerbCopy:
		if ct.Rows >= 0 && ct.Counts == nil {
			return verb + " " + strconv.FormatInt(ct.Rows, 10)
		}
	case VerbCommit, VerbRollback:
		return verb
	}

	if len(ct.Counts) > 0 {
		strs := make([]string, 0, len(ct.Counts)+1)
		strs = append(strs, verb)
		for _, n := range ct.Counts {
			strs = append(strs, strconv.FormatInt(n, 10))
		}
		return strings.Join(strs, " ")
	}
	if ct.Object != "" {
		return verb + " " + strings.ToUpper(strings.ReplaceAll(ct.Object, "_", " "))
	}
	return verb
}
