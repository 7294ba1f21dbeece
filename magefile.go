//go:build mage
// +build mage

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/magefile/mage/mg" // mg contains helpful utility functions, like Deps
	"github.com/magefile/mage/sh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/jeffypooo/lanmon/internal/shell"
)

// Default target to run when none is specified
var Default = Build

type Pi mg.Namespace

var (
	binDir   = "bin"
	buildDir = "bin/pi"
	agentBin = "lanmon-agent"
	cliBin   = "lanmon"

	templVersion = "v0.3.960"
)

// Regenerates the templ components under internal/web.
func Generate() error {
	fmt.Println("Generating templates...")
	return sh.RunV("go", "run", "github.com/a-h/templ/cmd/templ@"+templVersion, "generate", "-path", "internal/web")
}

// Builds the agent and the viewer CLI for the host platform.
func Build() error {
	mg.Deps(Generate)
	fmt.Println("Building...")
	if err := sh.RunV("go", "build", "-o", filepath.Join(binDir, agentBin), "./cmd"); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", filepath.Join(binDir, cliBin), "./cmd/cli")
}

// Runs the test suite with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Removes build output.
func Clean() {
	fmt.Println("Cleaning...")
	os.RemoveAll(binDir)
}

// Starts the agent on the Raspberry Pi over SSH with the given token. Blocks until the agent exits.
func (Pi) Start(host string, username string, token string) error {
	mg.Deps(mg.F(Pi.Deploy, host, username))
	client, err := sshClient(username, host)
	if err != nil {
		return fmt.Errorf("failed to create SSH client: %w", err)
	}
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	fmt.Println("--------------------------------")
	fmt.Println("RUNNING AGENT")
	fmt.Println("--------------------------------")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr
	cmd := "AGENT_TOKEN=" + shell.Quote(token) + " ~/lanmon/" + agentBin
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start agent on host: %w", err)
	}
	// handle signals
	go func() {
		sig := <-sigChan
		fmt.Println("Received signal:", sig)
		session.Signal(ssh.SIGTERM)
		// Give a moment, then force kill if necessary
		<-sigChan
		fmt.Println("Force killing agent...")
		session.Signal(ssh.SIGKILL)
		session.Close()
		os.Exit(1)
	}()

	err = session.Wait()
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			switch exitErr.ExitStatus() {
			case 143:
				fmt.Println("Agent exited with SIGTERM")
				return nil
			case 130:
				fmt.Println("Agent exited with SIGINT")
				return nil
			default:
				return fmt.Errorf("agent exited with unexpected status %d", exitErr.ExitStatus())
			}
		}
		return fmt.Errorf("failed to wait for agent to exit: %w", err)
	}

	return nil
}

// Builds and deploys the agent to the Raspberry Pi, using SSH.
// Assumes you have SSH keys setup for the Raspberry Pi.
func (Pi) Deploy(
	host string,
	username string,
) error {
	mg.Deps(Pi.Build)
	connStr := fmt.Sprintf("%s@%s", username, host)
	deployPath := "/home/" + username + "/lanmon"
	fmt.Printf("Copying binary via SCP to %s:%s\n", connStr, deployPath)

	// Create the deploy path if it doesn't exist
	err := sh.Run("ssh", connStr, "mkdir -p", deployPath)
	if err != nil {
		return fmt.Errorf("failed to create deploy path on host: %w", err)
	}
	err = sh.Run("scp", filepath.Join(buildDir, agentBin), fmt.Sprintf("%s:%s/%s", connStr, deployPath, agentBin))
	if err != nil {
		return fmt.Errorf("failed to deploy to host: %w", err)
	}
	return nil
}

// Builds the agent for the Raspberry Pi (linux/arm64)
func (Pi) Build() error {
	mg.Deps(Generate)
	fmt.Println("Building...")
	env := map[string]string{
		"GOOS":   "linux",
		"GOARCH": "arm64",
	}
	return sh.RunWithV(env, "go", "build", "-o", filepath.Join(buildDir, agentBin), "./cmd")
}

func sshClient(user, host string) (*ssh.Client, error) {

	var authMethods []ssh.AuthMethod

	// Try to connect to SSH agent
	conn, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
	if err == nil {
		agent := agent.NewClient(conn)
		signers, err := agent.Signers()
		if err == nil {
			signers = preferRSASHA2(signers)
			authMethods = append(authMethods, ssh.PublicKeys(signers...))
		}
	}

	if len(authMethods) == 0 {
		fmt.Println("No SSH keys found...")
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // Dev only.
	}
	addr := host + ":22"
	fmt.Println("Dialing SSH client to", addr)
	return ssh.Dial("tcp", addr, config)
}

func preferRSASHA2(signers []ssh.Signer) []ssh.Signer {
	var out []ssh.Signer
	for _, signer := range signers {
		if signer.PublicKey().Type() == ssh.KeyAlgoRSA {
			if algSigner, ok := signer.(ssh.AlgorithmSigner); ok {
				if mas, err := ssh.NewSignerWithAlgorithms(
					algSigner,
					[]string{
						ssh.KeyAlgoRSASHA256,
						ssh.KeyAlgoRSASHA512,
						ssh.KeyAlgoRSA,
					},
				); err == nil {
					out = append(out, mas)
					continue
				}
			}
		}
		out = append(out, signer)
	}
	return out
}
