// Package prompt implements retrieval-augmented construction of image
// generation prompts.
//
// The pipeline runs three stages. The refiner condenses a free-form user
// request into a retrieval query. The assembler searches the passage index
// and joins the top matches into a context block. The synthesizer asks the
// language model for the final image prompt, grounded in that context.
//
// The controller in pipeline.go fails open: any error on the retrieval
// path, including a bounded-wait timeout, degrades the request to direct
// synthesis without retrieval context rather than failing it. Errors reach
// the caller only when direct synthesis itself fails.
package prompt
