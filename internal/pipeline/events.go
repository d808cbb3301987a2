package pipeline

import (
	"strconv"

	"faultline/internal/notifier"
)

// Event kinds reported by the bot.
const (
	KindCommand           = "command"
	KindMessageCreate     = "MessageCreate"
	KindGuildMemberAdd    = "GuildMemberAdd"
	KindGuildCreate       = "GuildCreate"
	KindGuildDelete       = "GuildDelete"
	KindVoiceStateUpdate  = "VoiceStateUpdate"
	KindInteractionCreate = "InteractionCreate"
	KindReady             = "Ready"
	KindTrackError        = "TrackError"
)

type ChannelType string

const (
	TextChannel          ChannelType = "Text Channel"
	VoiceChannel         ChannelType = "Voice Channel"
	NewsThreadChannel    ChannelType = "News Thread Channel"
	PublicThreadChannel  ChannelType = "Public Thread Channel"
	PrivateThreadChannel ChannelType = "Private Thread Channel"
	PrivateChannel       ChannelType = "Private Channel"
	UnknownChannelType   ChannelType = "Unknown Channel Type"
)

func (c ChannelType) String() string {
	if c == "" {
		return string(UnknownChannelType)
	}
	return string(c)
}

type Guild struct {
	ID      string
	Name    string
	IconURL string
}

type User struct {
	Name      string
	AvatarURL string
}

func (u User) author() *notifier.Author {
	if u.Name == "" {
		return nil
	}
	return &notifier.Author{Name: u.Name, IconURL: u.AvatarURL}
}

type CommandContext struct {
	Name        string
	Slash       bool
	ChannelType ChannelType
	// Guild is nil for commands run in direct messages.
	Guild  *Guild
	Author User
}

// CommandReport describes a command that failed while running.
func CommandReport(err error, cmd CommandContext) Report {
	fields := []notifier.Field{
		notifier.InlineField("Command", cmd.Name),
		notifier.InlineField("Slash Command", strconv.FormatBool(cmd.Slash)),
		notifier.InlineField("Channel Type", cmd.ChannelType.String()),
	}
	if cmd.Guild != nil {
		fields = append(fields,
			notifier.InlineField("Guild", cmd.Guild.Name),
			notifier.InlineField("Guild ID", cmd.Guild.ID),
			notifier.BlankField(),
		)
	}
	return Report{Kind: KindCommand, Err: err, Fields: fields, Author: cmd.Author.author()}
}

type MessageContext struct {
	// Guild is nil for direct messages. An empty Name omits the Guild field.
	Guild       *Guild
	ChannelType ChannelType
	Author      User
}

func MessageReport(err error, msg MessageContext) Report {
	var fields []notifier.Field
	if msg.Guild != nil {
		if msg.Guild.Name != "" {
			fields = append(fields, notifier.InlineField("Guild", msg.Guild.Name))
		}
		fields = append(fields, notifier.InlineField("Guild ID", msg.Guild.ID))
	}
	fields = append(fields, notifier.InlineField("Channel Type", msg.ChannelType.String()))
	return Report{Kind: KindMessageCreate, Err: err, Fields: fields, Author: msg.Author.author()}
}

func MemberAddReport(err error, guild Guild, userID string) Report {
	name := guild.Name
	if name == "" {
		name = guild.ID
	}
	return Report{
		Kind: KindGuildMemberAdd,
		Err:  err,
		Fields: []notifier.Field{
			notifier.InlineField("Guild", name),
			notifier.InlineField("Guild ID", guild.ID),
			notifier.InlineField("User ID", userID),
		},
	}
}

// GuildReport describes a failure handling GuildCreate or GuildDelete. The
// guild, when known, is shown as the author.
func GuildReport(kind string, err error, guild *Guild) Report {
	rep := Report{Kind: kind, Err: err}
	if guild != nil && guild.Name != "" {
		rep.Author = &notifier.Author{Name: guild.Name, IconURL: guild.IconURL}
	}
	return rep
}

// EventReport describes a failure in an event with no extra context, such as
// VoiceStateUpdate, InteractionCreate or Ready.
func EventReport(kind string, err error) Report {
	return Report{Kind: kind, Err: err}
}

// TrackReport describes a failed audio track. The caller registers the
// fields and author when the track starts.
func TrackReport(err error, fields []notifier.Field, author *notifier.Author) Report {
	return Report{Kind: KindTrackError, Err: err, Fields: fields, Author: author}
}
