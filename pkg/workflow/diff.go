package workflow

import (
	"fmt"
	"strings"
)

const diffContext = 3

type diffOp struct {
	tag string // "equal", "delete", "insert"
	a   []string
	b   []string
}

// unifiedDiff renders the line differences between two texts in unified
// format. Only used for display in the final answer; no patch is ever
// applied from it.
func unifiedDiff(original, modified, fromFile, toFile string) string {
	a := strings.Split(original, "\n")
	b := strings.Split(modified, "\n")
	ops := diffOps(a, b)

	changed := false
	for _, op := range ops {
		if op.tag != "equal" {
			changed = true
			break
		}
	}
	if !changed {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("--- " + fromFile + "\n")
	sb.WriteString("+++ " + toFile + "\n")

	aLine, bLine := 1, 1
	var hunk []string
	hunkAStart, hunkBStart := 1, 1
	hunkALines, hunkBLines := 0, 0
	inHunk := false

	flush := func() {
		if !inHunk {
			return
		}
		sb.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", hunkAStart, hunkALines, hunkBStart, hunkBLines))
		for _, line := range hunk {
			sb.WriteString(line + "\n")
		}
		hunk = nil
		hunkALines, hunkBLines = 0, 0
		inHunk = false
	}

	for i, op := range ops {
		switch op.tag {
		case "equal":
			if inHunk {
				// Keep trailing context, close the hunk if the gap is big.
				keep := op.a
				if len(keep) > diffContext {
					keep = keep[:diffContext]
				}
				for _, line := range keep {
					hunk = append(hunk, " "+line)
					hunkALines++
					hunkBLines++
				}
				if len(op.a) > diffContext {
					flush()
				}
			}
			aLine += len(op.a)
			bLine += len(op.b)
		case "delete", "insert":
			if !inHunk {
				inHunk = true
				// Leading context from the previous equal run.
				lead := diffContext
				var prev []string
				if i > 0 && ops[i-1].tag == "equal" {
					prevRun := ops[i-1].a
					if len(prevRun) < lead {
						lead = len(prevRun)
					}
					prev = prevRun[len(prevRun)-lead:]
				} else {
					lead = 0
				}
				hunkAStart = aLine - lead
				hunkBStart = bLine - lead
				for _, line := range prev {
					hunk = append(hunk, " "+line)
					hunkALines++
					hunkBLines++
				}
			}
			for _, line := range op.a {
				hunk = append(hunk, "-"+line)
				hunkALines++
			}
			for _, line := range op.b {
				hunk = append(hunk, "+"+line)
				hunkBLines++
			}
			aLine += len(op.a)
			bLine += len(op.b)
		}
	}
	flush()
	return strings.TrimRight(sb.String(), "\n")
}

// diffOps computes an edit script between two line slices using a longest
// common subsequence table. Service files are small enough that the
// quadratic table is not a concern.
func diffOps(a, b []string) []diffOp {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []diffOp
	appendOp := func(tag string, aLines, bLines []string) {
		if len(aLines) == 0 && len(bLines) == 0 {
			return
		}
		if len(ops) > 0 && ops[len(ops)-1].tag == tag {
			ops[len(ops)-1].a = append(ops[len(ops)-1].a, aLines...)
			ops[len(ops)-1].b = append(ops[len(ops)-1].b, bLines...)
			return
		}
		ops = append(ops, diffOp{tag: tag, a: aLines, b: bLines})
	}

	i, j := 0, 0
	for i < n && j < m {
		if a[i] == b[j] {
			appendOp("equal", a[i:i+1], b[j:j+1])
			i++
			j++
		} else if lcs[i+1][j] >= lcs[i][j+1] {
			appendOp("delete", a[i:i+1], nil)
			i++
		} else {
			appendOp("insert", nil, b[j:j+1])
			j++
		}
	}
	appendOp("delete", a[i:], nil)
	appendOp("insert", nil, b[j:])
	return ops
}
