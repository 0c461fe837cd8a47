// Package agent implements the model/tool execution loop.
//
// An Agent alternates between asking a model.Model for the next assistant
// turn and dispatching the tool calls of that turn through a tool.Invoker,
// until the model answers without tool calls:
//
//	AWAITING_MODEL --tool calls--> AWAITING_TOOLS --results--> AWAITING_MODEL
//	AWAITING_MODEL --no tool calls--> DONE
//
// Each request owns an immutable core.Conversation; nothing is shared between
// concurrent Submit calls except the model client and the invoker pool.
// Tool failures are fed back to the model as data. Model failures, an
// exhausted iteration budget and cancellation abort the request.
package agent
