package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
)

type serverConfig struct {
	Server struct {
		Addr   string `mapstructure:"addr"`
		WSPath string `mapstructure:"ws_path"`
	} `mapstructure:"server"`
}

type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Persona   string `json:"persona,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Text      string `json:"text,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// say sends one utterance per argument to a running gateway, as the voice
// pipeline would, and prints the replies.
func main() {
	configPath := flag.String("config", "", "")
	persona := flag.String("persona", "shop", "")
	identity := flag.String("identity", "", "")
	host := flag.String("host", "", "override host:port")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println(`usage: say [-config=...] [-persona=shop|improv] "show me gaming gear" "add the first one"`)
		os.Exit(1)
	}
	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	addr := cfg.Server.Addr
	if *host != "" {
		addr = *host
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: cfg.Server.WSPath}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Println("dial error:", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := exchange(conn, frame{Type: "hello", Persona: *persona, Identity: *identity}); err != nil {
		fmt.Println("hello error:", err)
		os.Exit(1)
	}
	for _, text := range flag.Args() {
		fmt.Println("you:", text)
		if err := exchange(conn, frame{Type: "utterance", Text: text}); err != nil {
			fmt.Println("turn error:", err)
			os.Exit(1)
		}
	}
	_ = conn.WriteJSON(frame{Type: "bye"})
}

func exchange(conn *websocket.Conn, out frame) error {
	if err := conn.WriteJSON(out); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	var in frame
	if err := conn.ReadJSON(&in); err != nil {
		return err
	}
	if in.Type == "error" {
		return fmt.Errorf("%s: %s", in.Code, in.Message)
	}
	if in.SessionID != "" && in.Type == "hello_ack" {
		fmt.Println("session:", in.SessionID)
	}
	fmt.Println("cipher:", in.Text)
	return nil
}

func loadServerConfig(path string) (serverConfig, error) {
	v := viper.New()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return serverConfig{}, err
		}
	}
	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}
