package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// consolePrompter reads relay login credentials from stdin. The login flow
// runs before the bot starts, so interactive prompts are safe here.
type consolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsolePrompter(in io.Reader, out io.Writer) *consolePrompter {
	return &consolePrompter{in: bufio.NewReader(in), out: out}
}

func (p *consolePrompter) Code(ctx context.Context) (string, error) {
	return p.readLine(ctx, "Insert the login code: ")
}

func (p *consolePrompter) Password(ctx context.Context) (string, error) {
	return p.readLine(ctx, "Insert the account password: ")
}

func (p *consolePrompter) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return strings.TrimSpace(line), nil
}
