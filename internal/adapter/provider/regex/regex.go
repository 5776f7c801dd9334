package regex

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const matchTimeout = 5 * time.Second

// pythonSyntax rewrites the Python-only named group forms into the .NET
// forms regexp2 understands.
var pythonSyntax = strings.NewReplacer("(?P<", "(?<", "(?P=", `\k<`)

type Regex struct{}

func New() *Regex {
	return &Regex{}
}

func (r *Regex) Name() string {
	return "Regex Actions"
}

func (r *Regex) Description() string {
	return "Regular expression based text processing, e.g. multi-matches or keyword search."
}

func (r *Regex) Actions() []domain.Action {
	searchFrom := domain.Param{Name: "search_from", Description: "Column containing data to search from", Type: domain.Text}

	return []domain.Action{
		{
			ID:          "extract_multi",
			Name:        "Extract Multi",
			Description: "Extracts every match of the expression",
			Params: []domain.Param{
				searchFrom,
				{Name: "regex_exp", Description: "Regular expression to multi-search", Type: domain.Text},
			},
			Run: extractMulti,
		},
		{
			ID:          "extract_named",
			Name:        "Extract Named",
			Description: "Extracts the named groups, (?P<name>pattern), of a match at the start of the input",
			Params: []domain.Param{
				searchFrom,
				{Name: "regex_exp", Description: "Regular expression with named groups", Type: domain.Text},
			},
			Run: extractNamed,
		},
		{
			ID:          "find_keywords",
			Name:        "Find Keywords",
			Description: "Reports how many of the keywords match and how often",
			Params: []domain.Param{
				searchFrom,
				{Name: "keywords", Description: "Regular expressions separated by spaces", Type: domain.Text},
			},
			Run: findKeywords,
		},
	}
}

func compile(param, expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pythonSyntax.Replace(expr), regexp2.None)
	if err != nil {
		return nil, domain.BadArgument(param, "is not a valid regular expression: %v", err)
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

// extractMulti follows findall: whole matches without groups, the group
// text with one group, and one list per match with several.
func extractMulti(_ context.Context, args domain.Args) (any, error) {
	re, err := compile("regex_exp", args.Raw("regex_exp"))
	if err != nil {
		return nil, err
	}

	matched := []any{}
	err = eachMatch(re, args.Raw("search_from"), func(m *regexp2.Match) {
		groups := m.Groups()[1:]
		switch len(groups) {
		case 0:
			matched = append(matched, m.String())
		case 1:
			matched = append(matched, groups[0].String())
		default:
			values := make([]any, len(groups))
			for i, g := range groups {
				values[i] = g.String()
			}
			matched = append(matched, values)
		}
	})
	if err != nil {
		return nil, err
	}
	return domain.Result{"matched": matched}, nil
}

func extractNamed(_ context.Context, args domain.Args) (any, error) {
	re, err := compile("regex_exp", args.Raw("regex_exp"))
	if err != nil {
		return nil, err
	}

	m, err := re.FindStringMatch(args.Raw("search_from"))
	if err != nil {
		return nil, err
	}
	// the leftmost match starts at 0 whenever an anchored match exists
	if m == nil || m.Index != 0 {
		return domain.Result{"matched": "none"}, nil
	}

	named := domain.Result{}
	for _, g := range m.Groups()[1:] {
		if _, err := strconv.Atoi(g.Name); err == nil {
			continue
		}
		if len(g.Captures) == 0 {
			named[g.Name] = nil
			continue
		}
		named[g.Name] = g.String()
	}
	return named, nil
}

func findKeywords(_ context.Context, args domain.Args) (any, error) {
	keywords := strings.Fields(args.Raw("keywords"))
	if len(keywords) == 0 {
		return nil, domain.BadArgument("keywords", "is required")
	}
	input := args.Raw("search_from")

	matched := 0
	details := make([]any, 0, len(keywords))
	for _, keyword := range keywords {
		re, err := compile("keywords", keyword)
		if err != nil {
			return nil, err
		}
		count := 0
		if err := eachMatch(re, input, func(*regexp2.Match) { count++ }); err != nil {
			return nil, err
		}
		if count > 0 {
			matched++
		}
		details = append(details, domain.Result{"keyword": keyword, "occurrence": count})
	}

	return domain.Result{"result": domain.Result{
		"matched_percentage": 100 * matched / len(keywords),
		"details":            details,
	}}, nil
}

func eachMatch(re *regexp2.Regexp, input string, fn func(*regexp2.Match)) error {
	m, err := re.FindStringMatch(input)
	for m != nil && err == nil {
		fn(m)
		m, err = re.FindNextMatch(m)
	}
	return err
}
