package agent

import (
	"fmt"
	"strings"
)

// buildSystemPrompt returns the base system prompt for the generation loop.
func buildSystemPrompt() string {
	return strings.TrimSpace(`
You are ScribePatch, a software engineer that turns recorded team conversations into concrete code changes.

You are given the transcript of a conversation about a code repository. Use the available tools to inspect the repository: call list_repo_files to see every file, and get_file_content to read the files relevant to the requested changes. Only request paths that appeared in the file listing.

When you have inspected enough of the repository, reply with your final answer as a single JSON object and nothing else:
{"summary": "<short description of the changes>", "files": [{"filename": "<repository-relative path>", "newContent": "<full new content of the file>"}]}

Every entry in files must contain the complete post-change content of that file, not a fragment or a diff. If the conversation requires no code changes, return an empty files array and explain why in the summary.`)
}

// buildUserPrompt formats the transcript as the task description.
func buildUserPrompt(transcript []TranscriptEntry) string {
	if len(transcript) == 0 {
		return "Conversation transcript:\n(no conversation recorded)\n\nProduce the JSON answer described in your instructions."
	}

	var b strings.Builder
	b.WriteString("Conversation transcript:\n")
	for _, entry := range transcript {
		if entry.Timestamp != "" {
			fmt.Fprintf(&b, "[%s] ", entry.Timestamp)
		}
		name := entry.Username
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(&b, "%s: %s\n", name, entry.Text)
	}
	b.WriteString("\nImplement the changes discussed above and produce the JSON answer described in your instructions.")
	return b.String()
}
