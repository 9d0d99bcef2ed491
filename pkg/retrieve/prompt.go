package retrieve

import (
	"fmt"
	"strings"
	"time"

	"github.com/modoterra/logseer/pkg/core"
)

// NoDataAnswer is returned when stage-1 search finds nothing to ground an
// answer on.
const NoDataAnswer = "No relevant log data found for this question."

const promptHeader = `You are an expert Docker log analyst. Answer the question using only the
log excerpts below. Each excerpt is labeled with its time range. If the
excerpts do not contain the answer, say so. Cite the excerpts you used by
their [n] labels.`

// buildPrompt renders the generation prompt: instructions, the selected
// chunks in chronological order, then the question.
func buildPrompt(question string, chunks []core.Chunk) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\nLog excerpts:\n")
	for i, ch := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s to %s\n%s\n",
			i+1,
			ch.Start.UTC().Format(time.RFC3339),
			ch.End.UTC().Format(time.RFC3339),
			ch.Body())
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// fitBudget trims a relevance-ordered candidate list so the combined body
// text fits the character budget, dropping the least relevant first. At
// least one candidate always survives.
func fitBudget(cands []core.Candidate, budget int) []core.Candidate {
	total := 0
	for _, c := range cands {
		total += len(c.Chunk.Body())
	}
	for len(cands) > 1 && total > budget {
		last := cands[len(cands)-1]
		cands = cands[:len(cands)-1]
		total -= len(last.Chunk.Body())
	}
	return cands
}
