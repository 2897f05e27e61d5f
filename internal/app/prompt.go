package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kadirbelkuyu/docsnap/internal/config"
)

// Prompter asks for endpoint details on a terminal. It backs
// "profiles save" when no connection string is given on the command line.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewPrompter(r io.Reader, out io.Writer) *Prompter {
	if r == nil {
		r = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	var reader *bufio.Reader
	if br, ok := r.(*bufio.Reader); ok {
		reader = br
	} else {
		reader = bufio.NewReader(r)
	}

	return &Prompter{reader: reader, out: out}
}

// PromptEndpoint collects a MongoDB endpoint for the given label.
func (p *Prompter) PromptEndpoint(label string) (*config.DatabaseConfig, error) {
	fmt.Fprintf(p.out, "\nEnter MongoDB connection details for %s:\n", label)

	endpoint := &config.DatabaseConfig{Type: "mongo"}

	useURI, err := p.promptYesNo("Provide a MongoDB URI?", false)
	if err != nil {
		return nil, err
	}

	if useURI {
		uri, err := p.promptString("MongoDB URI", true)
		if err != nil {
			return nil, err
		}
		endpoint.URI = uri
		return endpoint, nil
	}

	host, err := p.promptStringWithDefault("Host", "localhost")
	if err != nil {
		return nil, err
	}
	port, err := p.promptInt("Port", 27017)
	if err != nil {
		return nil, err
	}
	username, err := p.promptString("Username (leave blank for none)", false)
	if err != nil {
		return nil, err
	}

	var password, authDB string
	if username != "" {
		password, err = p.promptString("Password (leave blank for none)", false)
		if err != nil {
			return nil, err
		}
		authDB, err = p.promptStringWithDefault("Auth database", "admin")
		if err != nil {
			return nil, err
		}
	}

	endpoint.Host = host
	endpoint.Port = port
	endpoint.Username = username
	endpoint.Password = password
	endpoint.AuthDatabase = strings.TrimSpace(authDB)
	return endpoint, nil
}

func (p *Prompter) promptString(label string, required bool) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		input, err := p.readLine()
		if err != nil {
			return "", err
		}
		if input == "" && required {
			fmt.Fprintln(p.out, "Please provide a value.")
			continue
		}
		return input, nil
	}
}

func (p *Prompter) promptYesNo(question string, defaultValue bool) (bool, error) {
	suffix := "(y/N)"
	if defaultValue {
		suffix = "(Y/n)"
	}

	for {
		fmt.Fprintf(p.out, "%s %s ", question, suffix)
		input, err := p.readLine()
		if err != nil {
			return false, err
		}

		if input == "" {
			return defaultValue, nil
		}

		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(p.out, "Please answer with y or n.")
		}
	}
}

func (p *Prompter) promptInt(question string, defaultValue int) (int, error) {
	for {
		fmt.Fprintf(p.out, "%s [%d]: ", question, defaultValue)
		input, err := p.readLine()
		if err != nil {
			return 0, err
		}

		if input == "" {
			return defaultValue, nil
		}

		value, err := strconv.Atoi(input)
		if err != nil || value <= 0 {
			fmt.Fprintln(p.out, "Please enter a valid number.")
			continue
		}

		return value, nil
	}
}

func (p *Prompter) promptStringWithDefault(label, defaultValue string) (string, error) {
	fmt.Fprintf(p.out, "%s [%s]: ", label, defaultValue)

	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
