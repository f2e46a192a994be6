package db

// timeLayout is how timestamps are stored. Fixed width UTC text sorts chronologically and
// stays readable by SQLite's date functions.
const timeLayout = "2006-01-02 15:04:05.000"

// defaultRecentLimit bounds the Recent* queries when no positive limit is given.
const defaultRecentLimit = 50
