package promptbuilder

import "strings"

// MaxPromptChars is the hard cap on the final combined prompt.
const MaxPromptChars = 80_000

// truncationSuffixReserve is subtracted from a section's max_chars budget
// before truncating, to leave room for the notice suffix.
const truncationSuffixReserve = 40

const sectionTruncationNotice = " [truncated]"
const promptTruncationNotice = "\n... [prompt truncated]"

// Spec is the configuration for one section: its name and budget.
type Spec struct {
	Name   Name
	Budget Budget
}

// Builder assembles the seven-section system prompt.
type Builder struct {
	specs         []Spec
	source        Source
	contextWindow int
}

// NewBuilder constructs a Builder. specs should list each of the seven
// Order names with its budget; contextWindow is the target model's total
// context window, used to resolve min_max budgets.
func NewBuilder(specs []Spec, source Source, contextWindow int) *Builder {
	return &Builder{specs: specs, source: source, contextWindow: contextWindow}
}

// Build assembles the prompt: fetches each section in fixed order,
// applies its budget, omits empty/unavailable sections, joins with blank
// lines, and enforces the final 80,000-char hard cap.
func (b *Builder) Build() string {
	bySection := make(map[Name]Budget, len(b.specs))
	for _, s := range b.specs {
		bySection[s.Name] = s.Budget
	}

	var parts []string
	for _, name := range Order {
		budget, ok := bySection[name]
		if !ok {
			continue
		}

		text, err := b.source.Fetch(name)
		if err != nil || text == "" {
			// External-store-unavailable or empty: section is skipped,
			// never errored.
			continue
		}

		maxChars := TokensToChars(budget.ResolveTokens(b.contextWindow))
		parts = append(parts, truncateSection(text, maxChars))
	}

	combined := strings.Join(parts, "\n\n")
	return truncatePrompt(combined)
}

// truncateSection enforces one section's budget, appending a truncation
// notice when the section is cut.
func truncateSection(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars - truncationSuffixReserve
	if cut < 0 {
		cut = 0
	}
	if cut > len(text) {
		cut = len(text)
	}
	return text[:cut] + sectionTruncationNotice
}

// truncatePrompt enforces the final 80,000-char hard cap.
func truncatePrompt(combined string) string {
	if len(combined) <= MaxPromptChars {
		return combined
	}
	cut := MaxPromptChars - len(promptTruncationNotice)
	if cut < 0 {
		cut = 0
	}
	return combined[:cut] + promptTruncationNotice
}
