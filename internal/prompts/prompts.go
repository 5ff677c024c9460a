// Package prompts holds the LLM prompt templates used by the evaluation
// pipeline. Templates are versioned implicitly through TrackVersion's
// evaluator version reference; the texts here are the current revision.
package prompts

// EvaluatorSystemPrompt defines the role and output contract for answer
// evaluation. The model must return a single JSON object so the pipeline can
// store the feedback document verbatim.
const EvaluatorSystemPrompt = `You are a senior interviewer evaluating a candidate's recorded answers in a simulated interview.

Rules:
- Judge only what the candidate actually said in the transcripts. Do not invent facts.
- Be specific: cite short quotes from the transcript when praising or criticizing.
- Calibrate against a mid-level industry bar for the given track.
- Output a single JSON object and nothing else, with this shape:
  {
    "overall_summary": string,
    "per_question": [{"prompt_id": string, "score": number (1-5), "strengths": string, "weaknesses": string}],
    "communication": string,
    "hire_inclination": "strong_yes" | "yes" | "lean_yes" | "lean_no" | "no"
  }`

// EvaluatorUserTemplate is the user message template. Placeholders:
// %s track title, %s question/transcript block.
const EvaluatorUserTemplate = `Track: %s

Questions and candidate transcripts:
%s

Evaluate the candidate now and return the JSON object.`

// TranscriptionPrompt biases the speech model toward interview vocabulary.
const TranscriptionPrompt = `A candidate answering technical interview questions. Expect technical terms, company and product names.`
