package engine

import "github.com/koscakluka/ema-sync/core/events"

type eventEmitter func(events.Event)

func newCallbackEventEmitter(opts RunOptions) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case MessagesUpdated:
			if opts.onMessages != nil {
				opts.onMessages(typedEvent.Messages)
			}
		case AgentReplied:
			if opts.onAgentReply != nil {
				opts.onAgentReply(typedEvent.Message)
			}
		case BubblesUpdated:
			if opts.onBubbles != nil {
				opts.onBubbles(typedEvent.Bubbles)
			}
		case SpeakingChanged:
			if opts.onSpeakingChanged != nil {
				opts.onSpeakingChanged(typedEvent.Speaking)
			}
		case LevelChanged:
			if opts.onLevelChanged != nil {
				opts.onLevelChanged(typedEvent.Level)
			}
		case PendingChanged:
			if opts.onPendingChanged != nil {
				opts.onPendingChanged(typedEvent.Pending)
			}
		case SessionError:
			if opts.onError != nil {
				opts.onError(typedEvent.Err)
			}
		}
	}
}
