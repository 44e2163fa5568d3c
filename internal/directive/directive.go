// Package directive extracts the bracketed directives the assistant embeds
// in its replies and returns them as typed records plus the residual prose.
//
// Parsing never fails: a malformed directive is simply absent from the
// result, and its text stays in place.
package directive

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/set-night/studiochat/internal/domain"
)

const (
	DefaultRatio  = "3:4"
	DefaultModule = "Untitled module"
)

// Tag names understood by the parser.
const (
	TagGenerateImage = "GENERATE_IMAGE"
	TagVisualDNAV2   = "VISUAL_DNA_V2"
	TagStyleDNA      = "STYLE_DNA"
	TagProposal      = "PROPOSAL"
	TagAddNode       = "ADD_NODE"
	TagUpdateNode    = "UPDATE_NODE"
)

// StyleLock is a Visual DNA declaration.
type StyleLock struct {
	Raw             string
	ProductIdentity string
	Legacy          bool
}

// Result is the outcome of parsing one assistant reply.
type Result struct {
	CleanedText string
	Image       *domain.ImageRequest
	StyleLock   *StyleLock
	Workflow    *domain.Workflow
	Actions     []domain.Action
}

// Empty reports whether no directive fired.
func (r *Result) Empty() bool {
	return r.Image == nil && r.StyleLock == nil && r.Workflow == nil && len(r.Actions) == 0
}

// block is a paired [TAG]...[/TAG] directive. decode returns false when
// the body is malformed; the block is then left in the text.
type block struct {
	tag    string
	re     *regexp.Regexp
	decode func(body string, r *Result) bool
}

// inline is a single-bracket directive such as [ADD_NODE:X].
type inline struct {
	tag    string
	re     *regexp.Regexp
	decode func(groups []string) domain.Action
}

func newBlock(tag string, decode func(string, *Result) bool) block {
	q := regexp.QuoteMeta(tag)
	return block{
		tag:    tag,
		re:     regexp.MustCompile(`[ \t]*\[` + q + `\]([\s\S]*?)\[/` + q + `\]`),
		decode: decode,
	}
}

func newInline(tag, fields string, decode func([]string) domain.Action) inline {
	return inline{
		tag:    tag,
		re:     regexp.MustCompile(`[ \t]*\[` + regexp.QuoteMeta(tag) + `:` + fields + `\]`),
		decode: decode,
	}
}

var (
	imageBlock = newBlock(TagGenerateImage, decodeImage)

	// Order matters: the current DNA format is consulted before the legacy one.
	blocks = []block{
		newBlock(TagVisualDNAV2, decodeStyle(false)),
		newBlock(TagStyleDNA, decodeStyle(true)),
		newBlock(TagProposal, decodeProposal),
	}

	inlines = []inline{
		newInline(TagAddNode, `(\w+)`, func(g []string) domain.Action {
			return domain.Action{
				Type:        domain.ActionAddNode,
				Params:      map[string]string{"type": g[1]},
				Description: fmt.Sprintf("Add node: %s", g[1]),
				Status:      domain.ActionPending,
			}
		}),
		newInline(TagUpdateNode, `([\w-]+):prompt="((?:[^"\\]|\\.)+)"`, func(g []string) domain.Action {
			return domain.Action{
				Type:        domain.ActionUpdateNode,
				Params:      map[string]string{"id": g[1], "prompt": unescapeQuotes(g[2])},
				Description: fmt.Sprintf("Update prompt of node %s", g[1]),
				Status:      domain.ActionPending,
			}
		}),
	}

	identityLine = regexp.MustCompile(`(?m)^[ \t]*product_identity:[ \t]*(.+)$`)
	ratioValue   = regexp.MustCompile(`^[1-9]\d*:[1-9]\d*$`)
)

// Parse converts one raw assistant reply into directives and cleaned text.
//
// Extraction repeats until the text is stable, so a tag exposed by removing
// another is both reported and stripped. A GENERATE_IMAGE block is
// exclusive: when present, every other well-formed directive in the reply
// is stripped but not returned.
func Parse(raw string) Result {
	var res Result

	text := raw
	for {
		next := extract(text, &res)
		if next == text {
			break
		}
		text = next
	}

	if res.Image != nil {
		res.StyleLock = nil
		res.Workflow = nil
		res.Actions = nil
	}
	res.CleanedText = strings.TrimSpace(text)
	return res
}

// extract decodes and removes every well-formed directive in one pass.
// Malformed blocks (a PROPOSAL whose body is not JSON) are kept verbatim.
func extract(text string, res *Result) string {
	text = imageBlock.re.ReplaceAllStringFunc(text, func(match string) string {
		if res.Image == nil {
			imageBlock.decode(imageBlock.re.FindStringSubmatch(match)[1], res)
		}
		return ""
	})
	for _, b := range blocks {
		text = b.re.ReplaceAllStringFunc(text, func(match string) string {
			if !b.decode(b.re.FindStringSubmatch(match)[1], res) {
				return match
			}
			return ""
		})
	}
	for _, in := range inlines {
		text = in.re.ReplaceAllStringFunc(text, func(match string) string {
			res.Actions = append(res.Actions, in.decode(in.re.FindStringSubmatch(match)))
			return ""
		})
	}
	return text
}

func decodeImage(body string, r *Result) bool {
	fields := parseFields(body)

	req := &domain.ImageRequest{
		Module: DefaultModule,
		Ratio:  DefaultRatio,
	}
	if v := fields["module"]; v != "" {
		req.Module = v
	}
	req.Prompt = fields["prompt"]
	req.Copy = fields["copy"]
	if v := fields["ratio"]; ratioValue.MatchString(v) {
		req.Ratio = v
	}
	req.UseUserImage = fields["userImage"] == "true"
	if v, ok := fields["needLabels"]; ok {
		req.NeedLabels = splitLabels(v)
	}

	r.Image = req
	return true
}

func decodeStyle(legacy bool) func(string, *Result) bool {
	return func(body string, r *Result) bool {
		if r.StyleLock != nil && !(r.StyleLock.Legacy && !legacy) {
			// First lock wins, except that V2 replaces a legacy one.
			return true
		}
		raw := strings.TrimSpace(body)
		lock := &StyleLock{Raw: raw, Legacy: legacy}
		if m := identityLine.FindStringSubmatch(raw); m != nil {
			lock.ProductIdentity = strings.TrimSpace(m[1])
		}
		r.StyleLock = lock
		return true
	}
}

func decodeProposal(body string, r *Result) bool {
	var wf domain.Workflow
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &wf); err != nil || wf.Nodes == nil {
		return false
	}
	if r.Workflow == nil {
		wf.Applied = false
		r.Workflow = &wf
	}
	return true
}

// parseFields reads "key: value" lines. The first occurrence of a key wins.
func parseFields(body string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

func splitLabels(v string) []string {
	labels := []string{}
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '，' }) {
		if part = strings.TrimSpace(part); part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}
