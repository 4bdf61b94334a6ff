// Package open writes a conversation to markdown and opens it in an editor.
package open

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Zuo-Peng/chat-history/internal/export"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

// OpenConversation exports c under dir and opens the file in $EDITOR at the
// section of messageID, or at the top when messageID is empty or hidden.
func OpenConversation(c model.Conversation, dir, messageID string, vis model.Visibility) error {
	path, err := export.WriteConversation(c, dir, vis)
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "less"
	}
	return openInEditor(editor, path, LineOf(c, vis, messageID))
}

// LineOf returns the 1-based line of messageID's section header in the
// markdown export of c.
func LineOf(c model.Conversation, vis model.Visibility, messageID string) int {
	if messageID == "" {
		return 1
	}
	header, nth := "", 0
	seen := make(map[string]int)
	for _, m := range c.Messages {
		if m.Text(vis) == "" {
			continue
		}
		h := fmt.Sprintf("## %s - %s", m.CreatedLocal(), m.Role)
		if m.ID == messageID {
			header, nth = h, seen[h]
			break
		}
		seen[h]++
	}
	if header == "" {
		return 1
	}
	for i, line := range strings.Split(export.Markdown(c, vis), "\n") {
		if line != header {
			continue
		}
		if nth == 0 {
			return i + 1
		}
		nth--
	}
	return 1
}

func openInEditor(editor, filePath string, lineNum int) error {
	var cmd *exec.Cmd

	switch {
	case strings.Contains(editor, "vim") || strings.Contains(editor, "nvim"):
		cmd = exec.Command(editor, fmt.Sprintf("+%d", lineNum), filePath)
	case strings.Contains(editor, "code"):
		cmd = exec.Command(editor, "--goto", filePath+":"+strconv.Itoa(lineNum))
	case strings.Contains(editor, "less"):
		cmd = exec.Command(editor, "+"+strconv.Itoa(lineNum), filePath)
	default:
		cmd = exec.Command(editor, filePath)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
