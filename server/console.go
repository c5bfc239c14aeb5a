package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/puyokura/foodfortalk/model"
)

type chatControl interface {
	Kick(userID uint) bool
	BroadcastSystem(ctx context.Context, text string) error
	OnlineUsers() []model.PresenceEntry
	ForgetName(userID uint)
}

type userAdmin interface {
	Create(ctx context.Context, email, firstName, nickname, passwordHash string) (*model.Identity, error)
	SetNickname(ctx context.Context, id uint, nickname string) error
}

type banList interface {
	Ban(userID uint) error
	Unban(userID uint) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

// console is the operator prompt on the server's stdin.
type console struct {
	chat   chatControl
	users  userAdmin
	bans   banList
	hasher passwordHasher
	out    io.Writer
}

const consoleHelp = `Available commands:
  online                                          list connected users
  kick <userId>                                   disconnect a user
  ban <userId>                                    ban and disconnect a user
  unban <userId>                                  lift a ban
  broadcast <message>                             send a system notice to everyone
  adduser <email> <password> <firstName> [nick]   register a user
  nick <userId> [nickname]                        set or clear a nickname
  stop                                            shut the server down`

// run reads commands until stop, EOF or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(c.out, "Server console ready. Type 'help' for commands.")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if stop := c.exec(ctx, scanner.Text()); stop {
			return
		}
	}
}

// exec runs one command line and reports whether the server should stop.
func (c *console) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
	case "stop":
		fmt.Fprintln(c.out, "Stopping server...")
		return true
	case "online":
		c.online()
	case "kick":
		c.withUserID(args, "kick <userId>", func(id uint) {
			if c.chat.Kick(id) {
				fmt.Fprintln(c.out, "User kicked.")
			} else {
				fmt.Fprintln(c.out, "User not online.")
			}
		})
	case "ban":
		c.withUserID(args, "ban <userId>", func(id uint) {
			if err := c.bans.Ban(id); err != nil {
				fmt.Fprintln(c.out, "Error banning:", err)
				return
			}
			c.chat.Kick(id)
			fmt.Fprintln(c.out, "User banned.")
		})
	case "unban":
		c.withUserID(args, "unban <userId>", func(id uint) {
			if err := c.bans.Unban(id); err != nil {
				fmt.Fprintln(c.out, "Error unbanning:", err)
				return
			}
			fmt.Fprintln(c.out, "User unbanned.")
		})
	case "broadcast":
		if len(args) < 1 {
			fmt.Fprintln(c.out, "Usage: broadcast <message>")
			return false
		}
		if err := c.chat.BroadcastSystem(ctx, "[Admin] "+strings.Join(args, " ")); err != nil {
			fmt.Fprintln(c.out, "Broadcast failed:", err)
			return false
		}
		fmt.Fprintln(c.out, "Broadcast sent.")
	case "adduser":
		c.addUser(ctx, args)
	case "nick":
		if len(args) < 1 {
			fmt.Fprintln(c.out, "Usage: nick <userId> [nickname]")
			return false
		}
		c.withUserID(args[:1], "nick <userId> [nickname]", func(id uint) {
			nickname := strings.Join(args[1:], " ")
			if err := c.users.SetNickname(ctx, id, nickname); err != nil {
				fmt.Fprintln(c.out, "Error setting nickname:", err)
				return
			}
			c.chat.ForgetName(id)
			fmt.Fprintln(c.out, "Nickname updated. Takes effect on the next connect.")
		})
	default:
		fmt.Fprintln(c.out, "Unknown command.")
	}
	return false
}

func (c *console) withUserID(args []string, usage string, fn func(uint)) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage:", usage)
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		fmt.Fprintln(c.out, "Invalid user id:", args[0])
		return
	}
	fn(uint(id))
}

func (c *console) online() {
	users := c.chat.OnlineUsers()
	if len(users) == 0 {
		fmt.Fprintln(c.out, "Nobody is online.")
		return
	}
	fmt.Fprintf(c.out, "%d online:\n", len(users))
	for _, u := range users {
		fmt.Fprintf(c.out, "  %d\t%s\n", u.UserID, u.DisplayName)
	}
}

func (c *console) addUser(ctx context.Context, args []string) {
	if len(args) < 3 || len(args) > 4 {
		fmt.Fprintln(c.out, "Usage: adduser <email> <password> <firstName> [nickname]")
		return
	}
	hash, err := c.hasher.Hash(args[1])
	if err != nil {
		fmt.Fprintln(c.out, "Error hashing password:", err)
		return
	}
	var nickname string
	if len(args) == 4 {
		nickname = args[3]
	}
	identity, err := c.users.Create(ctx, args[0], args[2], nickname, hash)
	if err != nil {
		fmt.Fprintln(c.out, "Error creating user:", err)
		return
	}
	fmt.Fprintf(c.out, "Created user %d (%s).\n", identity.UserID, model.DisplayName(*identity))
}
