package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240131120000[0:GMT]
<TRNAMT>2150.75
<FITID>2024013101
<NAME>ACME PAYROLL
<MEMO>January salary
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>EUR
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 4,
			expectedError: false,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
			expectedError: false,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedCount: 0,
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedCount: 0,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			reader := strings.NewReader(tt.ofxData)

			transactions, err := parser.ParseFile(context.Background(), reader)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Len(t, transactions, tt.expectedCount)
			}
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	parser := NewParser()
	reader := strings.NewReader(sampleBankOFX)

	transactions, err := parser.ParseFile(context.Background(), reader)
	require.NoError(t, err)
	require.Len(t, transactions, 4)

	for _, txn := range transactions {
		assert.True(t, txn.IsBalanced(), txn.Description)
		assert.Equal(t, model.USD, txn.Commodity)
		require.Len(t, txn.Splits(), 2)
		for _, split := range txn.Splits() {
			assert.Equal(t, txn.UID(), split.TransactionUID)
		}
	}

	// Withdrawal credits the bank account
	tx1 := transactions[0]
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Description)
	assert.Equal(t, time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC), tx1.Timestamp)
	bank := tx1.SplitsForAccount(StatementAccountUID("1234567890"))
	require.Len(t, bank, 1)
	assert.Equal(t, model.Credit, bank[0].Type)
	assert.Equal(t, "25.50 USD", bank[0].Value().String())
	balance := tx1.SplitsForAccount(model.ImbalanceAccountUID(model.USD))
	require.Len(t, balance, 1)
	assert.Equal(t, model.Debit, balance[0].Type)

	tx3 := transactions[2]
	assert.Equal(t, "CHECK #1234", tx3.Description)
	assert.Equal(t, "Check 1234", tx3.Notes)

	// Deposit debits the bank account
	tx4 := transactions[3]
	assert.Equal(t, "ACME PAYROLL", tx4.Description)
	assert.Equal(t, "January salary", tx4.Notes)
	deposit := tx4.SplitsForAccount(StatementAccountUID("1234567890"))
	require.Len(t, deposit, 1)
	assert.Equal(t, model.Debit, deposit[0].Type)
	assert.Equal(t, "2150.75 USD", deposit[0].Value().String())
}

func TestParseCreditCardTransactions(t *testing.T) {
	parser := NewParser()
	reader := strings.NewReader(sampleCreditCardOFX)

	transactions, err := parser.ParseFile(context.Background(), reader)
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	tx1 := transactions[0]
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", tx1.Description)
	assert.Equal(t, model.EUR, tx1.Commodity)
	card := tx1.SplitsForAccount(StatementAccountUID("4111111111111111"))
	require.Len(t, card, 1)
	assert.Equal(t, "45.99 EUR", card[0].Value().String())

	tx2 := transactions[1]
	assert.Equal(t, "NETFLIX.COM", tx2.Description)
	assert.NotEqual(t, tx1.UID(), tx2.UID())
}

func TestExtractMerchantName(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		memo     string
		expected string
	}{
		{
			name:     "remove POS prefix",
			input:    "POS PURCHASE STARBUCKS",
			expected: "STARBUCKS",
		},
		{
			name:     "remove DEBIT CARD prefix",
			input:    "DEBIT CARD PURCHASE WHOLE FOODS",
			expected: "WHOLE FOODS",
		},
		{
			name:     "keep clean name",
			input:    "NETFLIX.COM",
			expected: "NETFLIX.COM",
		},
		{
			name:     "trim whitespace",
			input:    "  AMAZON.COM  ",
			expected: "AMAZON.COM",
		},
		{
			name:     "generic name falls back to memo",
			input:    "PAYMENT",
			memo:     "CITY WATER DEPT",
			expected: "CITY WATER DEPT",
		},
		{
			name:     "strip leading date",
			input:    "01/15 CORNER BAKERY",
			expected: "CORNER BAKERY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
				Memo: ofxgo.String(tt.memo),
			}
			result := parser.extractMerchantName(tx)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTransactionUIDIsStable(t *testing.T) {
	first, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	second, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].UID(), second[i].UID())
	}
	assert.Len(t, first[0].UID(), 32)

	// The same FITID in another account is a different transaction
	assert.NotEqual(t, transactionUID("a", "1"), transactionUID("b", "1"))
}

func TestImportSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	parser := NewParser()
	txns, err := parser.ParseFile(ctx, strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	result, err := Import(ctx, store, parser.Accounts(), txns)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 4, AccountsCreated: 1}, result)

	again := NewParser()
	txns2, err := again.ParseFile(ctx, strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	result, err = Import(ctx, store, again.Accounts(), txns2)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Duplicates: 4}, result)

	stored, err := store.GetTransaction(ctx, txns[3].UID())
	require.NoError(t, err)
	assert.True(t, stored.IsBalanced())
	assert.Equal(t, "ACME PAYROLL", stored.Description)

	account, err := store.GetAccount(ctx, StatementAccountUID("1234567890"))
	require.NoError(t, err)
	assert.Equal(t, "OFX 1234567890", account.Name)
	assert.Equal(t, model.AccountBank, account.Type)

	_, err = store.GetAccount(ctx, model.ImbalanceAccountUID(model.USD))
	require.NoError(t, err)
}

func TestParserRemembersStatementAccounts(t *testing.T) {
	parser := NewParser()
	_, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	_, err = parser.ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	_, err = parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	accounts := parser.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, StatementAccountUID("1234567890"), accounts[0].UID)
	assert.Equal(t, model.AccountBank, accounts[0].Type)
	assert.Equal(t, StatementAccountUID("4111111111111111"), accounts[1].UID)
	assert.Equal(t, model.AccountCredit, accounts[1].Type)
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	reader := strings.NewReader(sampleBankOFX)
	accounts, err := parser.GetAccounts(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	reader = strings.NewReader(sampleCreditCardOFX)
	accounts, err = parser.GetAccounts(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}
