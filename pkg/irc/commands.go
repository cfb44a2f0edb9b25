package irc

import "strings"

func Nick(nick string) string {
	return "NICK " + nick
}

func User(nick string) string {
	return "USER " + nick + " * * :" + nick
}

func Join(channel, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "JOIN " + channel
	}
	return "JOIN " + channel + " " + key
}

func Privmsg(target, text string) string {
	return "PRIVMSG " + target + " :" + text
}

func Pong(token string) string {
	return "PONG :" + token
}

func Quit(reason string) string {
	return "QUIT :" + reason
}
