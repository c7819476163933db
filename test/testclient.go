//go:build ignore

// Smoke client for a running ptyhost daemon:
//
//	go run test/testclient.go -socket ~/.ptyhost/pty.sock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PiranhaCodes/ptyhost/internal/api"
	"github.com/PiranhaCodes/ptyhost/internal/config"
)

var log = logrus.WithField("component", "testclient")

type client struct {
	socket string
}

// call opens a connection per request, matching the server.
func (c *client) call(action string, data, out interface{}) error {
	conn, err := net.Dial("unix", c.socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := api.Request{Action: action}
	if data != nil {
		if req.Data, err = json.Marshal(data); err != nil {
			return err
		}
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}

	var resp struct {
		Ok   bool            `json:"ok"`
		Err  string          `json:"err"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("%s failed: %s", action, resp.Err)
	}
	if out != nil && len(resp.Data) > 0 {
		return json.Unmarshal(resp.Data, out)
	}
	return nil
}

func (c *client) drain(id string) (bool, error) {
	var rr api.ReadResponse
	if err := c.call(api.ActionRead, api.ReadRequest{ID: id}, &rr); err != nil {
		return false, err
	}
	fmt.Print(rr.Data)
	return rr.Running, nil
}

func main() {
	socketFlag := flag.String("socket", config.DefaultConfig().SocketPath, "Path to Unix socket")
	flag.Parse()

	socket, err := config.ExpandPath(*socketFlag)
	if err != nil {
		log.WithError(err).Fatal("expand socket path")
	}
	c := &client{socket: socket}

	var spawned api.SpawnResponse
	if err := c.call(api.ActionSpawn, api.SpawnRequest{Cols: 100, Rows: 30}, &spawned); err != nil {
		log.WithError(err).Fatal("spawn")
	}
	log.WithFields(logrus.Fields{"id": spawned.ID, "pid": spawned.Pid, "slave": spawned.Slave}).Info("spawned session")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	commands := []string{
		"echo 'Hello from PTY!'\n",
		"pwd\n",
		"stty size\n",
		"echo 'Test complete'\n",
	}
	for i, cmd := range commands {
		log.Infof("sending command %d: %q", i+1, cmd)
		if err := c.call(api.ActionWrite, api.WriteRequest{ID: spawned.ID, Data: cmd}, nil); err != nil {
			log.WithError(err).Warn("write")
		}
		time.Sleep(300 * time.Millisecond)
		if _, err := c.drain(spawned.ID); err != nil {
			log.WithError(err).Warn("read")
		}
	}

	if err := c.call(api.ActionResize, api.ResizeRequest{ID: spawned.ID, Cols: 132, Rows: 50}, nil); err != nil {
		log.WithError(err).Warn("resize")
	}
	var size api.SizeResponse
	if err := c.call(api.ActionSize, api.SessionRequest{ID: spawned.ID}, &size); err != nil {
		log.WithError(err).Warn("size")
	} else {
		log.Infof("terminal is now %dx%d", size.Cols, size.Rows)
	}

	var list api.ListResponse
	if err := c.call(api.ActionList, nil, &list); err != nil {
		log.WithError(err).Warn("list")
	} else {
		fmt.Printf("active sessions: %d\n", list.Count)
		for _, st := range list.Sessions {
			fmt.Printf("  - %s pid=%d %s running=%v\n", st.ID, st.Pid, st.Slave, st.Running)
		}
	}

	select {
	case <-sigChan:
		log.Info("interrupted")
	case <-time.After(2 * time.Second):
	}

	if err := c.call(api.ActionKill, api.SessionRequest{ID: spawned.ID}, nil); err != nil {
		log.WithError(err).Warn("kill")
	} else {
		log.Info("session killed")
	}
}
