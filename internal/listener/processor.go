package listener

import (
	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Echo returns every frame unchanged.
func Echo(frame []byte) []byte {
	return frame
}

// CommandHandler receives decoded commands. Its return value becomes the response.
type CommandHandler func(cmd protocol.Command) []byte

// Decoding wraps handler in a Processor that decodes each frame first.
// Frames that fail to decode are logged and answered with nothing.
func Decoding(handler CommandHandler) Processor {
	return func(frame []byte) []byte {
		cmd, err := protocol.Decode(frame)
		if err != nil {
			log.Warn().
				Err(err).
				Str("kind", protocol.KindOf(err).String()).
				Int("bytes", len(frame)).
				Msg("dropping undecodable frame")
			return nil
		}
		if !cmd.CmdValid() {
			log.Warn().Str("command", cmd.String()).Msg("dropping impermissible command")
			return nil
		}
		return handler(cmd)
	}
}
