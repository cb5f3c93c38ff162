package prompts

import _ "embed"

// Header explains the batch contract to the language model.
//
//go:embed header.md
var Header string

// Footer carries the output format reminder appended after the instruction.
//
//go:embed footer.md
var Footer string
