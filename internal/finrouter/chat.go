package finrouter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kart-io/finrouter/internal/finrouter/biz"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

const rule = "============================================================"

// overridePrefixes 强制指定处理器的输入前缀。
var overridePrefixes = []struct {
	prefix string
	route  biz.Route
}{
	{"sql:", biz.RouteStructured},
	{"rag:", biz.RouteRetrieval},
	{"web:", biz.RouteWeb},
}

// Chat 交互式问答，所有问题共用一个会话。
type Chat struct {
	service   biz.Service
	sessionID string
	in        io.Reader
	out       io.Writer
}

// NewChat creates an interactive session reading questions from in.
func NewChat(service biz.Service, sessionID string, in io.Reader, out io.Writer) *Chat {
	return &Chat{service: service, sessionID: sessionID, in: in, out: out}
}

// Run reads questions until quit, EOF or ctx is cancelled.
func (c *Chat) Run(ctx context.Context) error {
	c.banner()

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out, "\n\nGoodbye!")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			fmt.Fprintln(c.out, "\n\nGoodbye!")
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}

		c.render(c.service.Query(ctx, parseInput(input, c.sessionID)))
	}
}

func (c *Chat) banner() {
	fmt.Fprintln(c.out, "\n"+rule)
	fmt.Fprintln(c.out, "FINROUTER - Interactive Mode")
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  'quit' or 'exit' - Exit the assistant")
	fmt.Fprintln(c.out, "  'sql: <query>' - Force SQL handler")
	fmt.Fprintln(c.out, "  'rag: <query>' - Force policy documents handler")
	fmt.Fprintln(c.out, "  'web: <query>' - Force web search handler")
	fmt.Fprintln(c.out, rule)
}

func (c *Chat) render(result *biz.AgentResult) {
	fmt.Fprintf(c.out, "\nAgent: %s\n", result.Label())
	fmt.Fprintln(c.out, strings.Repeat("-", len(rule)))
	fmt.Fprintln(c.out, result.Answer)

	if sql := result.SQL(); sql != "" {
		fmt.Fprintf(c.out, "\n[SQL Query: %s]\n", sql)
	}
	if len(result.Sources) > 0 {
		names := make([]string, 0, len(result.Sources))
		for _, s := range result.Sources {
			names = append(names, s.String())
		}
		fmt.Fprintf(c.out, "\n[Sources: %s]\n", strings.Join(names, ", "))
	}
	if result.Err != nil {
		fmt.Fprintf(c.out, "\n⚠ Error: %s\n", apierrors.FromError(result.Err).Detail())
	}
}

// parseInput 解析前缀覆盖，前缀区分大小写。
func parseInput(input, sessionID string) biz.Query {
	q := biz.Query{Text: input, SessionID: sessionID, UseMemory: true}
	for _, p := range overridePrefixes {
		if strings.HasPrefix(input, p.prefix) {
			route := p.route
			q.Override = &route
			q.Text = strings.TrimSpace(input[len(p.prefix):])
			break
		}
	}
	return q
}
