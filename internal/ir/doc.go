// Package ir provides the foundation types shared by every geckode package.
//
// It holds the constrained value model for block fields, the replicated
// delta format, the causal stamps used by the merge rule, and the read-side
// views handed to the editor surface and the code generator.
//
// ir imports nothing internal. Key constraints:
//   - no float types anywhere; numbers are int64
//   - all ordering uses logical stamps (Lamport, actor), never wall clocks
//   - content hashes use RFC 8785 canonical JSON with domain separation
package ir
