// Package assistant answers marketplace chat turns with retrieved context.
//
// One turn:
//  1. resolve the session, creating one for the caller when the id is a
//     placeholder
//  2. store the user message
//  3. embed the message
//  4. gather context concurrently: listings similar to the message, listings
//     similar to the most recently linked listing, and examples for each
//     category keyword mentioned
//  5. build the prompt, call the model, store and return the reply
//
// Context branches degrade to empty on failure. Every other failure ends the
// turn with an error. The text scanning helpers in extract.go are pure and
// can be used on their own.
package assistant
