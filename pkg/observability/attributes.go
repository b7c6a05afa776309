// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

// Attribute keys. Instrumentation must use these so redaction can
// classify values by prefix.
const (
	AttrSpanKind = "fi.span.kind"

	AttrInputValue     = "input.value"
	AttrInputMimeType  = "input.mime_type"
	AttrOutputValue    = "output.value"
	AttrOutputMimeType = "output.mime_type"

	AttrLLMModelName            = "llm.model_name"
	AttrLLMProvider             = "llm.provider"
	AttrLLMSystem               = "llm.system"
	AttrLLMInvocationParameters = "llm.invocation_parameters"
	AttrLLMInputMessages        = "llm.input_messages"
	AttrLLMOutputMessages       = "llm.output_messages"
	AttrLLMTokenCountPrompt     = "llm.token_count.prompt"
	AttrLLMTokenCountCompletion = "llm.token_count.completion"
	AttrLLMTokenCountTotal      = "llm.token_count.total"
	AttrLLMFinishReason         = "llm.finish_reason"
	AttrLLMTools                = "llm.tools"

	AttrLLMPromptTemplate          = "llm.prompt_template.template"
	AttrLLMPromptTemplateVersion   = "llm.prompt_template.version"
	AttrLLMPromptTemplateVariables = "llm.prompt_template.variables"

	AttrToolName        = "tool.name"
	AttrToolDescription = "tool.description"
	AttrToolParameters  = "tool.parameters"

	AttrEmbeddingModelName  = "embedding.model_name"
	AttrEmbeddingEmbeddings = "embedding.embeddings"

	AttrSessionID = "session.id"
	AttrUserID    = "user.id"
	AttrTags      = "tag.tags"
	AttrMetadata  = "metadata"

	AttrAgentName         = "agent.name"
	AttrGraphNodeID       = "graph.node.id"
	AttrGraphNodeParentID = "graph.node.parent_id"

	AttrHandoffFromAgent = "handoff.from_agent"
	AttrHandoffToAgent   = "handoff.to_agent"

	AttrGuardrailName      = "guardrail.name"
	AttrGuardrailTriggered = "guardrail.triggered"

	AttrExceptionType    = "exception.type"
	AttrExceptionMessage = "exception.message"
)

// Message attribute suffixes, appended after
// "llm.{input,output}_messages.<index>.".
const (
	MessageRole    = "message.role"
	MessageContent = "message.content"
	MessageName    = "message.name"

	MessageContents        = "message.contents"
	MessageContentType     = "message_content.type"
	MessageContentText     = "message_content.text"
	MessageContentImage    = "message_content.image"
	MessageContentImageURL = "image.url"

	MessageToolCalls          = "message.tool_calls"
	ToolCallFunctionName      = "tool_call.function.name"
	ToolCallFunctionArguments = "tool_call.function.arguments"

	EmbeddingVectorSuffix = "embedding.vector"
	EmbeddingTextSuffix   = "embedding.text"
)

// Mime types written alongside input.value and output.value.
const (
	MimeTypeTextPlain = "text/plain"
	MimeTypeJSON      = "application/json"
)
