// Package report renders the final visit summary as a one-to-two page A4 PDF
// with the clinic letterhead, one section per summary field and a signature
// block. Text in Indian languages uses the matching Noto Sans font from the
// fonts directory when it is installed.
package report
