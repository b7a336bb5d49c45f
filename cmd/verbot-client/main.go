// Command verbot-client is an interactive prompt that sends actions to a
// running verbot over JSON-RPC.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/verbot/internal/web"
)

// aliases maps what the user may type to a verbot_action name.
var aliases = map[string]string{
	"s":            "stop",
	"stop":         "stop",
	"f":            "forwards",
	"forward":      "forwards",
	"forwards":     "forwards",
	"b":            "reverse",
	"backward":     "reverse",
	"backwards":    "reverse",
	"reverse":      "reverse",
	"l":            "rotate_left",
	"left":         "rotate_left",
	"rotate left":  "rotate_left",
	"r":            "rotate_right",
	"right":        "rotate_right",
	"rotate right": "rotate_right",
	"u":            "pick_up",
	"up":           "pick_up",
	"pick up":      "pick_up",
	"arms up":      "pick_up",
	"d":            "put_down",
	"down":         "put_down",
	"arms down":    "put_down",
	"put down":     "put_down",
	"t":            "talk",
	"talk":         "talk",
	"a":            "assistant",
	"assistant":    "assistant",
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "verbot JSON-RPC address")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	c := &client{
		url:  "http://" + *addr + "/",
		http: &http.Client{Timeout: *timeout},
	}
	if err := prompt(context.Background(), os.Stdin, os.Stdout, c); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// resolve maps typed input to an action name.
func resolve(input string) (string, bool) {
	action, ok := aliases[strings.ToLower(strings.Join(strings.Fields(input), " "))]
	return action, ok
}

func commandList() string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// prompt reads commands until EOF, sending each recognized one.
func prompt(ctx context.Context, in io.Reader, out io.Writer, c *client) error {
	fmt.Fprintln(out, "CTRL+D to exit")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Command: ")
		if !sc.Scan() {
			fmt.Fprintln(out, "\nGoodbye!")
			return sc.Err()
		}
		input := sc.Text()
		if strings.TrimSpace(input) == "" {
			continue
		}
		action, ok := resolve(input)
		if !ok {
			fmt.Fprintf(out, "%s is not a valid command. Valid commands are %s\n", input, commandList())
			continue
		}
		if err := c.call(ctx, action); err != nil {
			fmt.Fprintf(out, "ERROR: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", action)
	}
}

type client struct {
	url  string
	http *http.Client
}

// call invokes verbot_action with the given action name.
func (c *client) call(ctx context.Context, action string) error {
	params, err := json.Marshal(web.ActionParams{Action: action})
	if err != nil {
		return err
	}
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return err
	}
	body, err := json.Marshal(web.Request{
		JSONRPC: "2.0",
		Method:  web.MethodAction,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var r web.Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if r.Error != nil {
		return fmt.Errorf("rpc error %d: %s", r.Error.Code, r.Error.Message)
	}
	if !bytes.Equal(r.ID, id) {
		return fmt.Errorf("response id %s does not match request id %s", r.ID, id)
	}
	return nil
}
