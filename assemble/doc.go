// Package assemble implements the downstream assembly collaborator invoked
// once every required pipeline stage is done. The built-in assembler renders
// the accumulated document model to Markdown and stores the bytes as the
// task's final artifact; alternative backends (PDF writers, office formats)
// implement the same core.Assembler contract.
package assemble
